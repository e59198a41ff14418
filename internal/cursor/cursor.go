package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const stateVersion = 1

type payloadV1 struct {
	Version int    `json:"v"`
	Token   string `json:"t,omitempty"`
	HasMore bool   `json:"m"`
	Param   string `json:"p"`
}

// EncodeState renders state as an opaque base64-encoded JSON value.
func EncodeState(state State) (string, error) {
	data, err := json.Marshal(payloadV1{
		Version: stateVersion,
		Token:   state.Token,
		HasMore: state.HasMore,
		Param:   state.Param,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeState parses a value produced by EncodeState.
func DecodeState(raw string) (State, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return State{}, fmt.Errorf("invalid pagination state: %w", err)
	}
	var payload payloadV1
	if err := json.Unmarshal(data, &payload); err != nil {
		return State{}, fmt.Errorf("invalid pagination state: %w", err)
	}
	if payload.Version != stateVersion {
		return State{}, fmt.Errorf("invalid pagination state: unsupported version %d", payload.Version)
	}
	if payload.Param == "" {
		return State{}, errors.New("invalid pagination state: missing parameter name")
	}
	if payload.HasMore && payload.Token == "" {
		return State{}, errors.New("invalid pagination state: more pages without a token")
	}
	return State{Token: payload.Token, HasMore: payload.HasMore, Param: payload.Param}, nil
}
