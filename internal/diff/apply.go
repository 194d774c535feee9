package diff

import (
	"encoding/json"
	"fmt"

	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

// BasicPatch is the parsed form of a basic-facet history row
type BasicPatch struct {
	Receipt       *json.RawMessage `json:"receipt,omitempty"`
	ExpiryTime    *int64           `json:"expiryTime,omitempty"`
	UpdatedTime   *int64           `json:"updatedTime,omitempty"`
	CurrentStatus *string          `json:"currentStatus,omitempty"`
}

// ApplyBasic applies a reverse patch to the aggregate in place, restoring the
// pre-amendment values the patch carries.
func ApplyBasic(state *models.DetailedConsent, changedValues models.JSON) error {
	var patch BasicPatch
	if err := json.Unmarshal(changedValues, &patch); err != nil {
		return fmt.Errorf("failed to parse basic history patch: %w", err)
	}

	if patch.Receipt != nil {
		state.Receipt = models.JSON(*patch.Receipt)
	}
	if patch.ExpiryTime != nil {
		state.ExpiryTime = *patch.ExpiryTime
	}
	if patch.UpdatedTime != nil {
		state.UpdatedTime = *patch.UpdatedTime
	}
	if patch.CurrentStatus != nil {
		state.CurrentStatus = *patch.CurrentStatus
	}

	return nil
}

// ApplyAttributes applies a reverse attribute patch against the current map.
// A patch value equal to the current value marks a key added by the amendment
// and deletes it; any other value (including keys absent from current state)
// restores the old value.
func ApplyAttributes(current, patch map[string]string) map[string]string {
	result := make(map[string]string, len(current))
	for k, v := range current {
		result[k] = v
	}

	for key, patchValue := range patch {
		if currentValue, ok := result[key]; ok && currentValue == patchValue {
			delete(result, key)
			continue
		}
		result[key] = patchValue
	}

	return result
}

// ApplyMappings applies reverse mapping patches: a nil patch removes the
// mapping (it did not exist before the amendment), a status patch restores the
// old status.
func ApplyMappings(current []models.ConsentMapping, patches map[string]map[string]string) []models.ConsentMapping {
	result := make([]models.ConsentMapping, 0, len(current))

	for i := range current {
		mapping := current[i]
		patch, ok := patches[mapping.MappingID]
		if ok && patch == nil {
			continue
		}
		if ok {
			if oldStatus, exists := patch["mappingStatus"]; exists {
				mapping.MappingStatus = oldStatus
			}
		}
		result = append(result, mapping)
	}

	return result
}

// ApplyAuthResources applies reverse authorization patches, mirroring
// ApplyMappings with the authorization status as the tracked field.
func ApplyAuthResources(current []models.ConsentAuthResource, patches map[string]map[string]string) []models.ConsentAuthResource {
	result := make([]models.ConsentAuthResource, 0, len(current))

	for i := range current {
		resource := *current[i].Clone()
		patch, ok := patches[resource.AuthID]
		if ok && patch == nil {
			continue
		}
		if ok {
			if oldStatus, exists := patch["authStatus"]; exists {
				resource.AuthStatus = oldStatus
			}
		}
		result = append(result, resource)
	}

	return result
}
