package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL возвращается для входа, который не разбирается как URL
// или не является абсолютным http/https-адресом.
var ErrInvalidURL = errors.New("invalid URL")

// Встроенный список трекинговых параметров; параметры с префиксом utm_
// отбрасываются всегда.
var defaultTracking = []string{
	"fbclid", "gclid", "yclid", "igshid", "mc_cid", "mc_eid", "ref_src",
}

// Normalizer приводит URL к каноническому виду. Канонические строки
// сравниваются побайтово — это единственный критерий дубликата во всей системе.
type Normalizer struct {
	tracking map[string]struct{}
}

// New создаёт Normalizer со встроенным списком трекинговых параметров,
// расширенным значениями extra.
func New(extra ...string) *Normalizer {
	tracking := make(map[string]struct{}, len(defaultTracking)+len(extra))
	for _, p := range defaultTracking {
		tracking[p] = struct{}{}
	}
	for _, p := range extra {
		tracking[strings.ToLower(p)] = struct{}{}
	}
	return &Normalizer{tracking: tracking}
}

// Normalize возвращает каноническую форму URL.
// Правила, по порядку: схема и хост в нижний регистр; стандартные порты
// отбрасываются; трекинговые query-параметры удаляются, остальные
// сортируются по ключу; завершающий "/" пути убирается, кроме пути "/";
// фрагмент отбрасывается.
func (n *Normalizer) Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}

	query := u.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			delete(query, key)
			continue
		}
		if _, ok := n.tracking[lower]; ok {
			delete(query, key)
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	canonical := scheme + "://" + host + path
	// Encode сортирует параметры по ключу, что даёт детерминированный порядок.
	if encoded := query.Encode(); encoded != "" {
		canonical += "?" + encoded
	}
	return canonical, nil
}
