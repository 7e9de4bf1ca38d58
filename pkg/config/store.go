package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wentf9/xops-underlay/pkg/crypto"
	"github.com/wentf9/xops-underlay/pkg/models"
	"github.com/wentf9/xops-underlay/pkg/utils/file"
)

type Store interface {
	Load() (*Configuration, error)
	LoadRaw() (*Configuration, error)
	Save(cfg *Configuration) error
}

type defaultStore struct {
	Path    string
	KeyPath string // 用于加解密配置文件中的密码
}

func NewDefaultStore(path, keyPath string) Store {
	return &defaultStore{
		Path:    path,
		KeyPath: keyPath,
	}
}

// Load 读取 yaml，解密 ENC: 开头的密码并校验
func (s *defaultStore) Load() (*Configuration, error) {
	cfg, err := s.LoadRaw()
	if err != nil {
		return nil, err
	}
	if err := s.reveal(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRaw 只读取，不解密也不校验
func (s *defaultStore) LoadRaw() (*Configuration, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfiguration()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config '%s': %w", s.Path, err)
	}
	return cfg, nil
}

// Save 加密明文密码后写入文件，权限 0600
func (s *defaultStore) Save(cfg *Configuration) error {
	c, err := s.crypter(true)
	if err != nil {
		return err
	}
	out := *cfg
	out.Underlay.SSH = make([]models.CredentialEntry, len(cfg.Underlay.SSH))
	for i, e := range cfg.Underlay.SSH {
		e = e.Clone()
		if e.Password != "" {
			if e.Password, err = c.Encrypt(e.Password); err != nil {
				return fmt.Errorf("encrypt password of '%s': %w", e.NodeName, err)
			}
		}
		out.Underlay.SSH[i] = e
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return file.WriteFileRecursive(s.Path, data, 0600)
}

func (s *defaultStore) reveal(cfg *Configuration) error {
	if !slices.ContainsFunc(cfg.Underlay.SSH, func(e models.CredentialEntry) bool {
		return crypto.IsEncrypted(e.Password)
	}) {
		return nil
	}
	c, err := s.crypter(false)
	if err != nil {
		return err
	}
	for i := range cfg.Underlay.SSH {
		e := &cfg.Underlay.SSH[i]
		plain, err := c.Reveal(e.Password)
		if err != nil {
			return fmt.Errorf("decrypt password of '%s': %w", e.NodeName, err)
		}
		e.Password = plain
	}
	return nil
}

// crypter 加载密钥；create 为 true 时密钥文件不存在会自动生成
func (s *defaultStore) crypter(create bool) (*crypto.Crypter, error) {
	if s.KeyPath == "" {
		return nil, errors.New("no key file configured for encrypted fields")
	}
	var (
		key []byte
		err error
	)
	if create {
		key, err = crypto.LoadOrGenerateKey(s.KeyPath)
	} else {
		key, err = crypto.LoadKey(s.KeyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load key '%s': %w", s.KeyPath, err)
	}
	return crypto.NewCrypter(key)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验配置
func Validate(cfg *Configuration) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", verrs)
		}
		return err
	}
	return nil
}
