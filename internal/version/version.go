package version

import "fmt"

// Значения подставляются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/grubdash/internal/version.version=v1.2.0"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// BuildInfo описывает сборку сервиса.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get возвращает информацию о текущей сборке.
func Get() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, Date: date}
}

// GetVersion возвращает только версию, её показывает /healthz.
func GetVersion() string { return version }

// Fields возвращает сборку в виде полей для логгера.
func (b BuildInfo) Fields() map[string]any {
	return map[string]any{
		"version": b.Version,
		"commit":  b.Commit,
		"date":    b.Date,
	}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// String форматирует текущую сборку одной строкой.
func String() string { return Get().String() }
