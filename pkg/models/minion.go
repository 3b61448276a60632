package models

// Minion is the materialized view of one managed host. The JSON blob fields
// hold the raw documents reported by the master; each mutable field has a
// paired LastUpdated* stamp written in the same upsert.
type Minion struct {
	ID                    string  `json:"id"`
	LastSeen              Time    `json:"lastSeen"`
	Grains                *string `json:"grains"`
	Pillars               *string `json:"pillars"`
	Pkgs                  *string `json:"pkgs"`
	LastUpdatedGrains     *Time   `json:"lastUpdatedGrains"`
	LastUpdatedPillars    *Time   `json:"lastUpdatedPillars"`
	LastUpdatedPkgs       *Time   `json:"lastUpdatedPkgs"`
	Conformity            *string `json:"conformity"`
	ConformitySuccess     *int    `json:"conformitySuccess"`
	ConformityIncorrect   *int    `json:"conformityIncorrect"`
	ConformityError       *int    `json:"conformityError"`
	LastUpdatedConformity *Time   `json:"lastUpdatedConformity"`
	OSType                *string `json:"osType"`
}
