package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Gateway holds the online payment settings of one library source. Required
// credentials are checked by the gateway adapter itself so that a broken
// source fails on its own instead of taking the whole file down.
type Gateway struct {
	Handler    string `yaml:"handler"    validate:"required,oneof=cpu paytrail_e2 paytrail turku turku_api"`
	MerchantID string `yaml:"merchantId"`
	Secret     string `yaml:"secret"`
	URL        string `yaml:"url"        validate:"omitempty,url"`
	Currency   string `yaml:"currency"   validate:"omitempty,len=3"`

	ProductCode                     string `yaml:"productCode"`
	TransactionFeeProductCode       string `yaml:"transactionFeeProductCode"`
	ProductCodeMappings             string `yaml:"productCodeMappings"`
	OrganizationProductCodeMappings string `yaml:"organizationProductCodeMappings"`
	OrganizationMerchantIDMappings  string `yaml:"organizationMerchantIdMappings"`
	PaymentDescription              string `yaml:"paymentDescription"`
	SupportedLanguages              string `yaml:"supportedLanguages"`

	TransactionFee int64 `yaml:"transactionFee" validate:"gte=0"`
	MinimumFee     int64 `yaml:"minimumFee"     validate:"gte=0"`
}

type sourcesFile struct {
	Sources map[string]Gateway `yaml:"sources" validate:"required,min=1,dive"`
}

// LoadSources reads the per-source payment configuration file.
func LoadSources(path string) (map[string]Gateway, error) {
	const op = "config.LoadSources"

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var f sourcesFile
	if err := cleanenv.ReadConfig(path, &f); err != nil {
		return nil, fmt.Errorf("%s: read config: %w", op, err)
	}

	if err := validateStruct(&f); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return f.Sources, nil
}
