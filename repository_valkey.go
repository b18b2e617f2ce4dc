package main

import (
	"context"
	"encoding/json"

	"github.com/valkey-io/valkey-go"
)

const valkeyKeyPrefix = "lockstep:snapshot:"

type ValkeyRepository struct {
	client valkey.Client
}

func NewValkeyRepository(addr string) (*ValkeyRepository, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, err
	}
	logger.Infof("connected to valkey snapshot store at %s", addr)
	return &ValkeyRepository{client: client}, nil
}

func (r *ValkeyRepository) Get(ctx context.Context, instanceID string) (*Snapshot, error) {
	cmd := r.client.B().Get().Key(valkeyKeyPrefix + instanceID).Build()
	payload, err := r.client.Do(ctx, cmd).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	if err := json.Unmarshal([]byte(payload), snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *ValkeyRepository) Put(ctx context.Context, instanceID string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	cmd := r.client.B().Set().Key(valkeyKeyPrefix + instanceID).Value(string(payload)).Build()
	return r.client.Do(ctx, cmd).Error()
}

func (r *ValkeyRepository) Close() error {
	r.client.Close()
	return nil
}
