package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/boxops/portal/common/models"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// ErrInvalidPatch is returned when a resolution merge patch is rejected
var ErrInvalidPatch = errors.New("invalid resolution patch")

// resolutionFields are the only audit log fields a merge patch may touch
var resolutionFields = map[string]bool{
	"status":            true,
	"resolved_next_box": true,
	"resolution_note":   true,
}

// ResolutionPatch is the reviewer's decision extracted from a merge patch
type ResolutionPatch struct {
	ResolvedNextBox int
	Note            *string
}

type resolutionDoc struct {
	Status          models.AuditLogStatus `json:"status"`
	ResolvedNextBox *int                  `json:"resolved_next_box"`
	ResolutionNote  *string               `json:"resolution_note"`
}

// ApplyResolutionPatch applies an RFC 7396 merge patch to the resolution view of
// an audit log. The patched document must move the log to resolved and carry a
// next box.
func ApplyResolutionPatch(current *models.AuditLog, patch []byte) (*ResolutionPatch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPatch)
	}

	var rejected []string
	for name := range fields {
		if !resolutionFields[name] {
			rejected = append(rejected, name)
		}
	}
	if len(rejected) > 0 {
		sort.Strings(rejected)
		return nil, fmt.Errorf("%w: fields %v cannot be patched", ErrInvalidPatch, rejected)
	}

	original, err := json.Marshal(resolutionDoc{
		Status:          current.Status,
		ResolvedNextBox: current.ResolvedNextBox,
		ResolutionNote:  current.ResolutionNote,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit log: %w", err)
	}

	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	var doc resolutionDoc
	if err := json.Unmarshal(merged, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	if doc.Status != models.AuditLogResolved {
		return nil, fmt.Errorf("%w: status can only be set to %q", ErrInvalidPatch, models.AuditLogResolved)
	}
	if doc.ResolvedNextBox == nil {
		return nil, fmt.Errorf("%w: resolved_next_box is required", ErrInvalidPatch)
	}

	return &ResolutionPatch{
		ResolvedNextBox: *doc.ResolvedNextBox,
		Note:            doc.ResolutionNote,
	}, nil
}
