/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
// A missing entry is reported as an empty token, not an error.
type osKeyring struct{}

func (k *osKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (k *osKeyring) Set(service, key, value string) error {
	return keyring.Set(service, key, value)
}

func (k *osKeyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// memoryStore is an in-process TokenStore used by tests and headless CI.
type memoryStore struct{ m map[string]string }

func newMemoryStore() *memoryStore { return &memoryStore{m: map[string]string{}} }

func (s *memoryStore) Get(service, key string) (string, error) { return s.m[service+"/"+key], nil }
func (s *memoryStore) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}
func (s *memoryStore) Delete(service, key string) error {
	delete(s.m, service+"/"+key)
	return nil
}
