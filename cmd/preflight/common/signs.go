package common

const (
	CheckMark   = "✔️"
	WarningSign = "⚠️"
)
