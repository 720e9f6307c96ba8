package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePayloadPlacesNewEntityInEntityData(t *testing.T) {
	cols, err := EncodePayload(&NewEntityPayload{
		Name:          "Cafe Luna",
		EntityType:    EntityTypeStorefront,
		CategorySlugs: []string{"restaurants"},
	})
	require.NoError(t, err)

	assert.True(t, cols.EntityData.Valid)
	assert.False(t, cols.OldValue.Valid)
	assert.False(t, cols.NewValue.Valid)

	decoded, err := DecodePayload(ApprovalTypeNewEntity, cols)
	require.NoError(t, err)
	payload, ok := decoded.(*NewEntityPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"restaurants"}, payload.CategorySlugs)
}

func TestEncodePayloadKeepsEntityDataEmptyForOtherVariants(t *testing.T) {
	payloads := []ApprovalPayload{
		&UpdateEntityPayload{Old: EntityFields{Phone: strPtr("1")}, New: EntityFields{Phone: strPtr("2")}},
		&AddTagPayload{TagRef{TagSlug: "vegan"}},
		&RemoveTagPayload{TagRef{TagSlug: "vegan"}},
		&UpdateImagePayload{Old: StringMap{}, New: StringMap{"logo": "x"}},
	}
	for _, p := range payloads {
		t.Run(string(p.Type()), func(t *testing.T) {
			cols, err := EncodePayload(p)
			require.NoError(t, err)
			assert.False(t, cols.EntityData.Valid)

			decoded, err := DecodePayload(p.Type(), cols)
			require.NoError(t, err)
			assert.Equal(t, p, decoded)
		})
	}
}

func TestDecodePayloadRejectsUnknownType(t *testing.T) {
	_, err := DecodePayload(ApprovalType("MERGE"), PayloadColumns{})
	require.Error(t, err)
}

func TestApprovalMarshalJSONExposesColumns(t *testing.T) {
	approval := Approval{
		ID:      "a-1",
		Type:    ApprovalTypeAddTag,
		Status:  ProposalStatusPending,
		Payload: &AddTagPayload{TagRef{TagSlug: "vegan"}},
		Source:  SourcePublic,
	}

	raw, err := json.Marshal(approval)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "ADD_TAG", out["type"])
	assert.NotContains(t, out, "entityData")
	newValue, ok := out["newValue"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "vegan", newValue["tagSlug"])
}
