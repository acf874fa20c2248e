// Package enums provides type-safe enumeration types for the web interface.
//
// The enum types are defined as unexported integer types in this file, and go:generate directives
// invoke go-pkgz/enum to create the exported types with string conversion, parsing, text marshaling
// and sql Scan/Value in separate *_enum.go files.
//
//	status := enums.RunStatusRunning
//	fmt.Println(status.String()) // "running"
//	parsed, err := enums.ParseRunStatus("success")
//
// To regenerate the enum types after modifications:
//
//	go generate ./app/web/enums
package enums

//go:generate go run github.com/go-pkgz/enum@latest -type runStatus -lower
//go:generate go run github.com/go-pkgz/enum@latest -type eventType -lower
//go:generate go run github.com/go-pkgz/enum@latest -type theme -lower

// runStatus represents the status of a training run.
// Use the exported RunStatus type and its constants in actual code.
type runStatus int

const (
	runStatusPending runStatus = iota
	runStatusRunning
	runStatusSuccess
	runStatusFailed
	runStatusCanceled
)

// eventType represents server-sent event types of the run stream.
// Use the exported EventType type and its constants in actual code.
type eventType int

const (
	eventTypeProgress eventType = iota
	eventTypeDone
	eventTypeFailure
)

// theme represents UI color theme.
// Use the exported Theme type and its constants in actual code.
type theme int

const (
	themeAuto theme = iota
	themeLight
	themeDark
)
