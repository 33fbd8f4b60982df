package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullRequest_Validate(t *testing.T) {
	tests := []struct {
		req     PullRequest
		name    string
		wantErr bool
	}{
		{name: "no cookie", req: PullRequest{ClientGroupID: "cg1"}},
		{name: "with cookie", req: PullRequest{ClientGroupID: "cg1", Cookie: &Cookie{Order: 3, CVRID: "x"}}},
		{name: "missing group", req: PullRequest{}, wantErr: true},
		{name: "cookie without cvr id", req: PullRequest{ClientGroupID: "cg1", Cookie: &Cookie{Order: 1}}, wantErr: true},
		{name: "negative order", req: PullRequest{ClientGroupID: "cg1", Cookie: &Cookie{Order: -1, CVRID: "x"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPushRequest_Validate(t *testing.T) {
	valid := Mutation{ID: 1, ClientID: "c1", Name: "list", Args: json.RawMessage(`[]`)}

	tests := []struct {
		name    string
		req     PushRequest
		wantErr bool
	}{
		{name: "valid", req: PushRequest{ClientGroupID: "cg1", Mutations: []Mutation{valid}}},
		{name: "empty batch", req: PushRequest{ClientGroupID: "cg1"}},
		{name: "missing group", req: PushRequest{Mutations: []Mutation{valid}}, wantErr: true},
		{name: "zero id", req: PushRequest{ClientGroupID: "cg1", Mutations: []Mutation{{ClientID: "c1", Name: "list"}}}, wantErr: true},
		{name: "missing client", req: PushRequest{ClientGroupID: "cg1", Mutations: []Mutation{{ID: 1, Name: "list"}}}, wantErr: true},
		{name: "missing name", req: PushRequest{ClientGroupID: "cg1", Mutations: []Mutation{{ID: 1, ClientID: "c1"}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPullResponse_WireFormat(t *testing.T) {
	resp := PullResponse{
		Cookie:                &Cookie{Order: 1, CVRID: "cvr"},
		LastMutationIDChanges: map[string]int64{},
		Patch: []PatchOp{
			{Op: PatchOpClear},
			{Op: PatchOpPut, Key: "board/b1", Value: json.RawMessage(`{"id":"b1"}`)},
			{Op: PatchOpDel, Key: "board/b2"},
		},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"cookie": {"order": 1, "cvrID": "cvr"},
		"lastMutationIDChanges": {},
		"patch": [
			{"op": "clear"},
			{"op": "put", "key": "board/b1", "value": {"id": "b1"}},
			{"op": "del", "key": "board/b2"}
		]
	}`, string(data))
}

func TestPullRequest_NullCookie(t *testing.T) {
	var req PullRequest
	require.NoError(t, json.Unmarshal([]byte(`{"clientGroupID":"cg","cookie":null,"pullVersion":1}`), &req))
	assert.Nil(t, req.Cookie)
	assert.Equal(t, "cg", req.ClientGroupID)
	assert.Equal(t, 1, req.PullVersion)
}
