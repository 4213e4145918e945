// Package core hosts the small collaborators that sit between config
// loading and the Fetcher: header management today, with room for the
// other cross-cutting pieces the teacher keeps at this layer.
package core

import (
	"net/http"

	"github.com/sitearchiver/sitearchiver/internal/config"
	"github.com/sitearchiver/sitearchiver/internal/models"
	"github.com/sitearchiver/sitearchiver/internal/utils"
)

// HeaderManager resolves the extra headers merged into every fetch, per
// spec §4.9's "merge any caller-supplied custom headers last": defaults
// (none — the Fetcher's own anti-detection headers win that tier),
// config file, then CLI flags, each layer validated before use.
//
// Grounded on the teacher's internal/core/header_manager.go: same
// three-tier precedence (defaults < config < cli), same validate-then-
// merge flow, generalized so "defaults" here is the empty set — the
// Fetcher supplies the browser-identity defaults, HeaderManager supplies
// only the operator-requested extras layered on top.
type HeaderManager struct {
	cli http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	config map[string]string
	loaded bool
}

// NewHeaderManager builds a manager reading extra headers from
// configFile (config.DefaultConfigFile if empty) and parsing cliHeaders
// ("Name: Value" strings, as passed via repeated --header flags).
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewHeaderConfigLoader(configFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	} else {
		hm.cli = make(http.Header)
	}

	return hm, nil
}

// GetHeaders implements models.HeaderProvider: loads the config file on
// first call, validates every header name/value, and returns the
// config-then-cli merged set.
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if !hm.loaded {
		headerConfig, err := hm.configLoader.LoadConfig()
		if err != nil {
			utils.Errorf("failed to load http header config: %v", err)
			return nil, err
		}
		hm.config = headerConfig.Headers
		hm.loaded = true

		if len(hm.config) > 0 {
			configHeaders := make(http.Header)
			for name, value := range hm.config {
				configHeaders.Set(name, value)
			}
			utils.Debugf("loaded %d http header config entries: %v", len(hm.config), hm.redactor.Redact(configHeaders))
		}
	}

	merged := make(http.Header)
	for name, value := range hm.config {
		merged.Set(name, value)
	}
	for name, values := range hm.cli {
		merged[name] = values
	}

	if err := hm.validator.Validate(merged); err != nil {
		utils.Errorf("http header validation failed: %v", err)
		return nil, err
	}

	return merged, nil
}
