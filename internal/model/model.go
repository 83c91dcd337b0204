// Package model holds the typed records written by the sync pipelines and the
// codecs that turn spreadsheet cells into them.
package model

// Organization is one team row after cell decoding. Reference fields (Sport,
// City, Country) still carry the display name; the pipeline swaps them for ids.
type Organization struct {
	Name      string
	Sport     string
	Level     string
	Street    string
	Postal    string
	City      string
	Country   string
	Website   string
	Phone     string
	Email     string
	Founded   *int64
	Revenue   *float64
	Employees *int64
	Socials   Socials
	Hours     Hours
}

// Contact is one person row after cell decoding.
type Contact struct {
	Name          string
	Team          string
	Role          string
	Email         string
	EmailVerified *bool
	Phone         string
	LinkedIn      string
	Department    string
}
