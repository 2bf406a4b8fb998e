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

package config

import (
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/gorse-io/insight/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var (
	dataStorePrefixes = []string{
		storage.MySQLPrefix,
		storage.PostgresPrefix,
		storage.PostgreSQLPrefix,
		storage.SQLitePrefix,
	}
	cacheStorePrefixes = []string{
		storage.MySQLPrefix,
		storage.PostgresPrefix,
		storage.PostgreSQLPrefix,
		storage.SQLitePrefix,
		storage.RedisPrefix,
		storage.RedissPrefix,
	}
)

func hasPrefix(prefixes []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return lo.ContainsBy(prefixes, func(prefix string) bool {
			return strings.HasPrefix(value, prefix)
		})
	}
}

// validateBlend rejects blends where every weight is zero, since nothing
// could be ranked.
func validateBlend(sl validator.StructLevel) {
	switch blend := sl.Current().Interface().(type) {
	case HybridConfig:
		if blend.ContentWeight+blend.CollaborativeWeight+blend.FactorWeight == 0 {
			sl.ReportError(blend.ContentWeight, "ContentWeight", "ContentWeight", "nonzero_blend", "")
		}
	case FactorConfig:
		if blend.SGDWeight+blend.SVDWeight+blend.NMFWeight == 0 {
			sl.ReportError(blend.SGDWeight, "SGDWeight", "SGDWeight", "nonzero_blend", "")
		}
	case CollaborativeConfig:
		if blend.UserWeight+blend.ItemWeight == 0 {
			sl.ReportError(blend.UserWeight, "UserWeight", "UserWeight", "nonzero_blend", "")
		}
	}
}

// Validate checks the configuration and reports every violation in one error.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", hasPrefix(dataStorePrefixes)); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterValidation("cache_store", hasPrefix(cacheStorePrefixes)); err != nil {
		return errors.Trace(err)
	}
	validate.RegisterStructValidation(validateBlend, HybridConfig{}, FactorConfig{}, CollaborativeConfig{})
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errors.Trace(err)
	}
	messages := lo.Map(validationErrors, func(fieldError validator.FieldError, _ int) string {
		return fieldError.Translate(trans)
	})
	return errors.NotValidf("config: %s", strings.Join(messages, "; "))
}
