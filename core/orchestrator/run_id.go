package orchestrator

import (
	"fmt"

	"github.com/google/uuid"
)

// generateRunID returns a globally unique run identifier. The generated
// identifier is prefixed for observability in logs and checkpoint listings
// without sacrificing uniqueness.
func generateRunID() string {
	return fmt.Sprintf("run-%s", uuid.NewString())
}
