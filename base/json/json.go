// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package json

import (
	"encoding/json"

	"github.com/juju/errors"
)

// MarshalString returns the JSON encoding of v as a string.
func MarshalString(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}

// UnmarshalString parses a JSON string into v. An empty string clears v.
func UnmarshalString(s string, v any) error {
	if s == "" {
		s = "null"
	}
	return errors.Trace(json.Unmarshal([]byte(s), v))
}
