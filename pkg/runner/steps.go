package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wentf9/xops-underlay/pkg/models"
)

// StepSpec 步骤文件中的一项
type StepSpec struct {
	Cmd         string     `yaml:"cmd"`
	NodeName    string     `yaml:"node_name"`
	Host        string     `yaml:"host"`
	AddressPool string     `yaml:"address_pool"`
	Description string     `yaml:"description"`
	Retry       *RetrySpec `yaml:"retry"`
	SkipFail    bool       `yaml:"skip_fail"`
	Sudo        bool       `yaml:"sudo"`
}

// RetrySpec delay 以秒为单位
type RetrySpec struct {
	Count *int `yaml:"count"`
	Delay *int `yaml:"delay"`
}

func (s StepSpec) Step() (Step, error) {
	if s.Cmd == "" {
		return Step{}, errors.New("cmd is required")
	}
	target := models.Target{NodeName: s.NodeName, Host: s.Host, AddressPool: s.AddressPool}
	if target.NodeName == "" && target.Host == "" {
		return Step{}, errors.New("node_name or host is required")
	}
	step := Step{
		Cmd:         s.Cmd,
		Target:      target,
		Description: s.Description,
		SkipFail:    s.SkipFail,
		Sudo:        s.Sudo,
	}
	if s.Retry != nil {
		rt := DefaultRetry
		if s.Retry.Count != nil {
			rt.Count = *s.Retry.Count
		}
		if s.Retry.Delay != nil {
			rt.Delay = time.Duration(*s.Retry.Delay) * time.Second
		}
		step.Retry = &rt
	}
	return step, nil
}

// ParseSteps 解析 YAML 格式的步骤列表
func ParseSteps(r io.Reader) ([]Step, error) {
	var specs []StepSpec
	if err := yaml.NewDecoder(r).Decode(&specs); err != nil {
		if errors.Is(err, io.EOF) {
			return []Step{}, nil
		}
		return nil, fmt.Errorf("failed to parse steps: %w", err)
	}
	steps := make([]Step, 0, len(specs))
	for i, spec := range specs {
		step, err := spec.Step()
		if err != nil {
			return nil, fmt.Errorf("step #%d: %w", i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// LoadSteps 从文件读取步骤列表
func LoadSteps(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSteps(f)
}
