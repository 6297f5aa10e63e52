package keyring

import (
	"errors"
	"fmt"

	ring "github.com/99designs/keyring"
	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

type Service struct {
	ring ring.Keyring
}

func NewService(name string) (*Service, error) {
	rind, err := ring.Open(ring.Config{
		ServiceName:  name,
		KeychainName: "login",
		AllowedBackends: []ring.BackendType{
			ring.SecretServiceBackend,
			ring.KeychainBackend,
			ring.WinCredBackend,
			ring.KeyCtlBackend,
			ring.KWalletBackend,
			ring.PassBackend,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}

	return &Service{
		ring: rind,
	}, nil
}

func (s *Service) Get(key string) (string, error) {
	value, err := s.ring.Get(key)
	if errors.Is(err, ring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting key %q: %w", key, err)
	}
	return string(value.Data), nil
}

func (s *Service) Set(key, value string, extra lib.KeyExtras) error {
	item := ring.Item{
		Key:  key,
		Data: []byte(value),
	}
	if extra.Label != "" {
		item.Label = extra.Label
	}
	if extra.Description != "" {
		item.Description = extra.Description
	}
	if err := s.ring.Set(item); err != nil {
		return fmt.Errorf("setting key %q: %w", key, err)
	}
	return nil
}

func (s *Service) Remove(key string) error {
	err := s.ring.Remove(key)
	if errors.Is(err, ring.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("removing key %q: %w", key, err)
	}
	return nil
}
