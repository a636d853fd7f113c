package configloader

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"io/fs"
	"os"
	"path/filepath"
)

// Validator 由配置结构体实现时，加载完成后会被调用
type Validator interface {
	Validate() error
}

// Defaulter 由配置结构体实现时，在校验前填充默认值
type Defaulter interface {
	ApplyDefaults()
}

// LoadConfig 读取 yaml 配置文件到 v：
//  1. 同目录或工作目录下存在 .env 时先加载（不覆盖已有环境变量）
//  2. 展开文件中的 ${VAR} 引用（API key 等不写入 yaml）
//  3. 填充默认值并校验
func LoadConfig(path string, v any) error {
	if err := loadDotEnv(path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), v); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if d, ok := v.(Defaulter); ok {
		d.ApplyDefaults()
	}
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", path, err)
		}
	}
	return nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{
		filepath.Join(filepath.Dir(configPath), ".env"),
		".env",
	}
	for _, p := range candidates {
		err := godotenv.Load(p)
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load %s: %w", p, err)
	}
	return nil
}
