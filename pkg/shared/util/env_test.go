/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupEnvStringOr(t *testing.T) {
	assert.Equal(t, "default", LookupEnvStringOr("FAKE_ENV_VAR", "default"))
	t.Setenv("FAKE_ENV_VAR", "value")
	assert.Equal(t, "value", LookupEnvStringOr("FAKE_ENV_VAR", "default"))
}

func TestLookupEnvIntOr(t *testing.T) {
	assert.Equal(t, 42, LookupEnvIntOr("FAKE_INT_VAR", 42))
	t.Setenv("FAKE_INT_VAR", "7")
	assert.Equal(t, 7, LookupEnvIntOr("FAKE_INT_VAR", 42))
	t.Setenv("FAKE_INT_VAR", "not-a-number")
	assert.Panics(t, func() { LookupEnvIntOr("FAKE_INT_VAR", 42) })
}
