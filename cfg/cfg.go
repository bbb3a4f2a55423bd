package cfg

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Load 按扩展名解析配置文件并填充 object
//
// 支持 .yaml/.yml、.toml、.ini、.json，文件内容中的 ${VAR} 会先用环境变量展开。
func Load(path string, object any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s failed", path)
	}

	input, err := Parse(filepath.Ext(path), []byte(os.ExpandEnv(string(data))))
	if err != nil {
		return errors.WithMessagef(err, "parse config file %s failed", path)
	}

	return Decode(input, object)
}

// Parse 将原始数据解析为 map，format 为扩展名，可以带点
func Parse(format string, data []byte) (map[string]any, error) {
	result := map[string]any{}
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode YAML")
		}
	case "toml":
		if err := toml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode TOML")
		}
	case "json":
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode JSON")
		}
	case "ini":
		return parseIni(data)
	default:
		return nil, errors.Errorf("unsupported config format: %s", format)
	}
	return result, nil
}

// parseIni 默认 section 的键放在顶层，其他 section 作为嵌套 map
func parseIni(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		values := result
		if section.Name() != ini.DefaultSection {
			values = map[string]any{}
			result[section.Name()] = values
		}
		for _, key := range section.Keys() {
			values[key.Name()] = key.Value()
		}
	}
	return result, nil
}

// Decode 将 map 等通用结构转换为 object，然后设置默认值并校验
//
// 字段名取自 cfg tag，字符串会按需转换为数字、布尔值和 time.Duration。
func Decode(input any, object any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "cfg",
		WeaklyTypedInput: true,
		Result:           object,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Wrap(err, "create decoder failed")
	}

	if input != nil {
		if err := decoder.Decode(input); err != nil {
			return errors.Wrap(err, "decode failed")
		}
	}

	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "set defaults failed")
	}

	if err := ValidateStruct(object); err != nil {
		return errors.Wrap(err, "validate failed")
	}

	return nil
}
