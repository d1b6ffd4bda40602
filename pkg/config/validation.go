package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("octalmode", func(fl validator.FieldLevel) bool {
		_, err := ParseFileMode(fl.Field().String())
		return err == nil
	})
	return v
}

// ParseFileMode parses an octal permission string such as "0644".
func ParseFileMode(s string) (os.FileMode, error) {
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", s, err)
	}
	if m > 0o7777 {
		return 0, fmt.Errorf("invalid file mode %q: out of range", s)
	}
	return os.FileMode(m), nil
}

// Validate checks struct tags first and then the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' validation", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if err := cfg.History.Validate(); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	seenNetworks := map[string]bool{}
	for _, p := range cfg.Locator.Ports {
		if seenNetworks[p.Network] {
			return fmt.Errorf("locator: network %s bound to more than one port", p.Network)
		}
		seenNetworks[p.Network] = true
	}

	seenTargets := map[string]bool{}
	for _, t := range cfg.Targets {
		if seenTargets[t.Name] {
			return fmt.Errorf("targets: duplicate name %q", t.Name)
		}
		seenTargets[t.Name] = true
		if err := validateTarget(t); err != nil {
			return fmt.Errorf("target %q: %w", t.Name, err)
		}
	}

	for name, spec := range map[string]string{"publish": cfg.Schedule.Publish, "distribute": cfg.Schedule.Distribute} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("schedule.%s: %w", name, err)
		}
	}
	return nil
}

func validateTarget(t TargetConfig) error {
	switch t.Kind {
	case "ssh":
		var missing []string
		if t.SSH.Host == "" {
			missing = append(missing, "host")
		}
		if t.SSH.User == "" {
			missing = append(missing, "user")
		}
		if t.SSH.KeyPath == "" {
			missing = append(missing, "key_path")
		}
		if t.SSH.RemoteDir == "" {
			missing = append(missing, "remote_dir")
		}
		if len(missing) > 0 {
			return fmt.Errorf("ssh requires %s", strings.Join(missing, ", "))
		}
		if t.SSH.KnownHostsPath == "" && !t.SSH.InsecureHostKey {
			return errors.New("ssh requires known_hosts_path or insecure_host_key")
		}
		if t.SSH.RemoteDir == "/" {
			return errors.New("ssh remote_dir must not be /")
		}
	case "s3":
		if t.S3.Bucket == "" {
			return errors.New("s3 requires bucket")
		}
		if (t.S3.AccessKeyID == "") != (t.S3.SecretAccessKey == "") {
			return errors.New("s3 access_key_id and secret_access_key must be set together")
		}
	}
	return nil
}
