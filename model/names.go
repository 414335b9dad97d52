package model

// DisplayNames maps accounts to human-readable names for logs and reports.
// Purely presentational; identity logic never consults it.
type DisplayNames map[AccountID]string

// Name returns the display name for an account, or "Unknown" if absent.
func (d DisplayNames) Name(account AccountID) string {
	if name, ok := d[account]; ok {
		return name
	}
	return "Unknown"
}

// DevDisplayNames returns the well-known development account names used by
// the simulator and examples.
func DevDisplayNames() DisplayNames {
	return DisplayNames{
		"alice":   "Alice",
		"bob":     "Bob",
		"charlie": "Charlie",
		"dave":    "Dave",
		"eve":     "Eve",
		"ferdie":  "Ferdie",
	}
}
