package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DomainsHolder holds the employee email-domain allow list. The list lives in
// an optional domains.yml so membership policy can change without a redeploy;
// the env fallback covers minimal setups.
type DomainsHolder struct {
	current atomic.Value // holds []string
}

func NewDomainsHolder(cfg Config, log *zap.Logger) (*DomainsHolder, error) {
	v := viper.New()

	v.SetConfigName("domains")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/tapkeeper")
	v.AddConfigPath(".")

	h := &DomainsHolder{}
	h.current.Store(normalizeDomains(cfg.EmployeeDomains))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no file, env fallback stays active
		return h, nil
	}

	h.current.Store(normalizeDomains(v.GetStringSlice("employee_domains")))

	v.OnConfigChange(func(_ fsnotify.Event) {
		domains := normalizeDomains(v.GetStringSlice("employee_domains"))
		h.current.Store(domains)
		if log != nil {
			log.Info("employee domain allow list reloaded", zap.Strings("domains", domains))
		}
	})
	v.WatchConfig()

	return h, nil
}

// Domains returns the active allow list.
func (h *DomainsHolder) Domains() []string {
	if v, ok := h.current.Load().([]string); ok {
		return v
	}
	return nil
}

// IsEmployeeEmail reports whether the email's domain part matches one of the
// configured organization domains (case-insensitive exact match).
func (h *DomainsHolder) IsEmployeeEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range h.Domains() {
		if domain == d {
			return true
		}
	}
	return false
}

func normalizeDomains(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}
