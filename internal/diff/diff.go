// Package diff computes reverse deltas between two images of a consent
// aggregate. Every emitted patch holds the pre-amendment values of the fields
// that changed, so consent state at any past point can be rebuilt by applying
// patches backward from current state, newest first.
package diff

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/wso2/financial-services-consent-mgt/internal/models"
)

// Basic compares the basic consent fields (receipt, expiry time, updated time,
// current status) and returns a patch keyed by field name holding the old
// value for each field whose new value differs. An empty patch means the basic
// facet did not change and no history row must be written for it.
func Basic(newRes, oldRes *models.DetailedConsent) map[string]interface{} {
	changed := make(map[string]interface{})

	if !jsonEqual(newRes.Receipt, oldRes.Receipt) {
		changed["receipt"] = json.RawMessage(oldRes.Receipt)
	}
	if newRes.ExpiryTime != oldRes.ExpiryTime {
		changed["expiryTime"] = oldRes.ExpiryTime
	}
	if newRes.UpdatedTime != oldRes.UpdatedTime {
		changed["updatedTime"] = oldRes.UpdatedTime
	}
	if newRes.CurrentStatus != oldRes.CurrentStatus {
		changed["currentStatus"] = oldRes.CurrentStatus
	}

	return changed
}

// Attributes compares two attribute maps. Three cases per key:
//   - present only in old (removed this amendment): the old value is emitted
//   - present only in new (added this amendment): the new value is emitted, so
//     that applying the patch against the new state deletes the key
//   - present in both with different values: the old value is emitted
//
// Keys with equal values are omitted. Note the emitted map alone cannot
// distinguish "added" from "already present with this exact value"; consumers
// need the current state to interpret it. This is the legacy wire shape and is
// kept for compatibility with external audit tooling.
func Attributes(newAttrs, oldAttrs map[string]string) map[string]string {
	changed := make(map[string]string)

	for key, oldValue := range oldAttrs {
		newValue, ok := newAttrs[key]
		if !ok || newValue != oldValue {
			changed[key] = oldValue
		}
	}
	for key, newValue := range newAttrs {
		if _, ok := oldAttrs[key]; !ok {
			changed[key] = newValue
		}
	}

	return changed
}

// Mappings compares two mapping lists matched by mapping id. For a mapping
// present in both whose status changed, the old status is emitted. A mapping
// present only in the new list maps to nil, the sentinel for "did not exist
// before this amendment". Mappings removed from the list are not represented
// in the legacy wire shape. List order carries no meaning; the first match by
// id wins.
func Mappings(newMappings, oldMappings []models.ConsentMapping) map[string]map[string]string {
	changed := make(map[string]map[string]string)

	for i := range newMappings {
		newMapping := &newMappings[i]
		oldMapping := findMapping(oldMappings, newMapping.MappingID)
		if oldMapping == nil {
			changed[newMapping.MappingID] = nil
			continue
		}
		if newMapping.MappingStatus != oldMapping.MappingStatus {
			changed[newMapping.MappingID] = map[string]string{
				"mappingStatus": oldMapping.MappingStatus,
			}
		}
	}

	return changed
}

// AuthResources compares two authorization-resource lists matched by auth id,
// tracking the authorization status. Same shape as Mappings: ids present only
// in the new list map to nil.
func AuthResources(newAuth, oldAuth []models.ConsentAuthResource) map[string]map[string]string {
	changed := make(map[string]map[string]string)

	for i := range newAuth {
		newRes := &newAuth[i]
		oldRes := findAuthResource(oldAuth, newRes.AuthID)
		if oldRes == nil {
			changed[newRes.AuthID] = nil
			continue
		}
		if newRes.AuthStatus != oldRes.AuthStatus {
			changed[newRes.AuthID] = map[string]string{
				"authStatus": oldRes.AuthStatus,
			}
		}
	}

	return changed
}

// RecordIDsForHistory returns the ids whose history rows must be fetched
// together to reconstruct the consent's full past state: the consent id itself
// (basic and attribute facets), each authorization id, and each mapping id.
func RecordIDsForHistory(consent *models.DetailedConsent) []string {
	ids := make([]string, 0, 1+len(consent.AuthResources)+len(consent.Mappings))
	ids = append(ids, consent.ConsentID)
	for i := range consent.AuthResources {
		ids = append(ids, consent.AuthResources[i].AuthID)
	}
	for i := range consent.Mappings {
		ids = append(ids, consent.Mappings[i].MappingID)
	}
	return ids
}

func findMapping(mappings []models.ConsentMapping, mappingID string) *models.ConsentMapping {
	for i := range mappings {
		if mappings[i].MappingID == mappingID {
			return &mappings[i]
		}
	}
	return nil
}

func findAuthResource(resources []models.ConsentAuthResource, authID string) *models.ConsentAuthResource {
	for i := range resources {
		if resources[i].AuthID == authID {
			return &resources[i]
		}
	}
	return nil
}

// jsonEqual compares two JSON documents structurally, ignoring key order and
// whitespace. Invalid documents fall back to byte comparison.
func jsonEqual(a, b models.JSON) bool {
	if a == nil || b == nil {
		return bytes.Equal(a, b)
	}

	var parsedA, parsedB interface{}
	if err := json.Unmarshal(a, &parsedA); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Unmarshal(b, &parsedB); err != nil {
		return bytes.Equal(a, b)
	}

	return reflect.DeepEqual(parsedA, parsedB)
}
