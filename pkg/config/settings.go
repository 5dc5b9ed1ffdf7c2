package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/alerting"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/errors"
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/media"
	"gopkg.in/yaml.v3"
)

// Settings holds the exception thresholds read from the settings file.
type Settings struct {
	CauseCodesExcluded      []string `json:"cause_codes_excluded" yaml:"cause_codes_excluded" validate:"dive,required"`
	CauseCodeAmberThreshold int      `json:"cause_code_amber_threshold" yaml:"cause_code_amber_threshold" validate:"gte=0"`
	CauseCodeRedThreshold   int      `json:"cause_code_red_threshold" yaml:"cause_code_red_threshold" validate:"gte=0"`
	MOSThreshold            float64  `json:"mos_threshold" yaml:"mos_threshold" validate:"gte=0"`
	CCRThreshold            float64  `json:"ccr_threshold" yaml:"ccr_threshold" validate:"gte=0"`
	MOSAmberThreshold       int      `json:"mos_amber_threshold" yaml:"mos_amber_threshold" validate:"gte=0"`
	MOSRedThreshold         int      `json:"mos_red_threshold" yaml:"mos_red_threshold" validate:"gte=0"`
}

// CallThresholds returns the bucket thresholds for CDR exceptions
func (s Settings) CallThresholds() alerting.Thresholds {
	return alerting.Thresholds{Amber: s.CauseCodeAmberThreshold, Red: s.CauseCodeRedThreshold}
}

// QualityThresholds returns the bucket thresholds for CMR exceptions
func (s Settings) QualityThresholds() alerting.Thresholds {
	return alerting.Thresholds{Amber: s.MOSAmberThreshold, Red: s.MOSRedThreshold}
}

// QualityPredicate returns the per-record voice quality thresholds
func (s Settings) QualityPredicate() media.Thresholds {
	return media.Thresholds{MOS: s.MOSThreshold, CCR: s.CCRThreshold}
}

// settingKeys lists the mandatory keys with the name used in error messages.
var settingKeys = []struct {
	key  string
	name string
}{
	{"cause_codes_excluded", "Excluded cause codes"},
	{"cause_code_amber_threshold", "Cause code amber threshold"},
	{"cause_code_red_threshold", "Cause code red threshold"},
	{"mos_threshold", "MoS threshold"},
	{"ccr_threshold", "CCR threshold"},
	{"mos_amber_threshold", "MoS amber threshold"},
	{"mos_red_threshold", "MoS red threshold"},
}

// LoadSettings reads a JSON or YAML settings file. Thresholds may be numbers
// or numeric strings.
func LoadSettings(path string) (Settings, error) {
	raw, err := readDocument(path)
	if err != nil {
		return Settings{}, err
	}
	return decodeSettings(raw, path)
}

func decodeSettings(raw map[string]interface{}, path string) (Settings, error) {
	for _, k := range settingKeys {
		if v, ok := raw[k.key]; !ok || v == nil {
			return Settings{}, errors.NewInvalidConfig(k.name+" missing", map[string]interface{}{
				"path": path,
				"key":  k.key,
			})
		}
	}

	var s Settings
	var err error

	if s.CauseCodesExcluded, err = toStringList(raw["cause_codes_excluded"]); err != nil {
		return Settings{}, numericError(path, "cause_codes_excluded", err)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"cause_code_amber_threshold", &s.CauseCodeAmberThreshold},
		{"cause_code_red_threshold", &s.CauseCodeRedThreshold},
		{"mos_amber_threshold", &s.MOSAmberThreshold},
		{"mos_red_threshold", &s.MOSRedThreshold},
	}
	for _, f := range ints {
		if *f.dst, err = toInt(raw[f.key]); err != nil {
			return Settings{}, numericError(path, f.key, err)
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"mos_threshold", &s.MOSThreshold},
		{"ccr_threshold", &s.CCRThreshold},
	}
	for _, f := range floats {
		if *f.dst, err = toFloat(raw[f.key]); err != nil {
			return Settings{}, numericError(path, f.key, err)
		}
	}

	return s, nil
}

func numericError(path, key string, err error) error {
	return errors.Wrap(errors.ErrInvalidConfig, "one or more numeric thresholds is not a valid number", map[string]interface{}{
		"path":  path,
		"key":   key,
		"error": err.Error(),
	})
}

// CauseCodes maps a Q.850 termination cause code to its description.
type CauseCodes map[string]string

// Describe returns the description of a cause code, or "Unknown".
func (c CauseCodes) Describe(code string) string {
	if desc, ok := c[code]; ok {
		return desc
	}
	return "Unknown"
}

// LoadCauseCodes reads the cause code description file. An empty table is an error.
func LoadCauseCodes(path string) (CauseCodes, error) {
	raw, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	codes := make(CauseCodes, len(raw))
	for code, v := range raw {
		switch desc := v.(type) {
		case string:
			codes[code] = desc
		case nil:
			codes[code] = ""
		default:
			codes[code] = fmt.Sprint(desc)
		}
	}

	if len(codes) == 0 {
		return nil, errors.NewInvalidConfig("unable to load termination cause codes", map[string]interface{}{"path": path})
	}
	return codes, nil
}

// readDocument decodes a JSON object, or YAML when the extension says so.
func readDocument(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "unable to open "+filepath.Base(path), map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}

	raw := make(map[string]interface{})
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "unable to parse "+filepath.Base(path), map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
	return raw, nil
}

// toInt truncates numbers and parses integer strings.
func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// toStringList accepts a list of strings or numbers. Cause codes are compared
// as text against the CSV columns, so numbers are formatted without decimals.
func toStringList(v interface{}) ([]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case int:
			out = append(out, strconv.Itoa(s))
		case float64:
			out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
		default:
			return nil, fmt.Errorf("unsupported list item %T", item)
		}
	}
	return out, nil
}
