package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/engine"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

const (
	// Deadline bounds the whole verification
	Deadline = 60 * time.Second
	// SampleInterval is the probe cadence
	SampleInterval = 5 * time.Second
	// requiredConsecutive healthy samples before declaring recovery
	requiredConsecutive = 2
)

// DescriptorSource resolves container names for targets that were recreated
// under a new id during remediation. Implemented by the registry.
type DescriptorSource interface {
	Get(id string) (*types.Container, bool)
}

// Verifier probes a container's health after remediation. Implements
// incident.Verifier.
type Verifier struct {
	eng         engine.Engine
	descriptors DescriptorSource
	logger      zerolog.Logger

	deadline time.Duration
	interval time.Duration
}

// New creates a Verifier with the standard probe cadence
func New(eng engine.Engine, descriptors DescriptorSource) *Verifier {
	return &Verifier{
		eng:         eng,
		descriptors: descriptors,
		logger:      log.WithComponent("verifier"),
		deadline:    Deadline,
		interval:    SampleInterval,
	}
}

// Verify polls the container every five seconds for up to a minute. The
// container is healthy when it reports running — and, when a healthcheck is
// declared, healthy — for two consecutive samples. A restart-count increment
// alone is not failure; recovery just needs the status to stabilize. The
// returned error carries verifier_timeout when health never converged.
func (v *Verifier) Verify(ctx context.Context, containerID string) error {
	ctx, cancel := context.WithTimeout(ctx, v.deadline)
	defer cancel()

	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	consecutive := 0
	currentID := containerID

	for {
		select {
		case <-ctx.Done():
			metrics.VerificationsTotal.WithLabelValues("timeout").Inc()
			return types.NewError(types.ErrVerifierTimeout, "verify",
				fmt.Errorf("container %s did not return to health within %s", log.ShortID(containerID), v.deadline))
		case <-ticker.C:
			detail, err := v.probe(ctx, &currentID, containerID)
			if err != nil {
				consecutive = 0
				v.logger.Debug().Err(err).Msg("health probe failed")
				continue
			}

			if healthy(detail) {
				consecutive++
				if consecutive >= requiredConsecutive {
					metrics.VerificationsTotal.WithLabelValues("healthy").Inc()
					v.logger.Info().
						Str("container", detail.Name).
						Msg("container verified healthy")
					return nil
				}
			} else {
				consecutive = 0
			}
		}
	}
}

// probe inspects the current target, re-resolving by name once when the
// original id disappeared (remediation that recreates a container assigns a
// new id under the same name)
func (v *Verifier) probe(ctx context.Context, currentID *string, originalID string) (*engine.ContainerDetail, error) {
	detail, err := v.eng.Inspect(ctx, *currentID)
	if err == nil {
		return detail, nil
	}

	descriptor, ok := v.descriptors.Get(originalID)
	if !ok {
		return nil, err
	}
	id, resolveErr := v.eng.ResolveName(ctx, descriptor.Name)
	if resolveErr != nil {
		return nil, err
	}
	*currentID = id
	return v.eng.Inspect(ctx, id)
}

// healthy applies the recovery predicate for one sample
func healthy(detail *engine.ContainerDetail) bool {
	if detail.Status != "running" {
		return false
	}
	switch detail.Health {
	case "", "none":
		return true
	case "healthy":
		return true
	default:
		return false
	}
}
