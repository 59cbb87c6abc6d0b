// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// SecurityAccessLogTable represents the 'security.accesslog' table
//
// Rows are append-only: nothing in the application ever updates or deletes
// them. Retention is handled by an external cleanup job.
type SecurityAccessLogTable struct {
	Table             string
	ID                string
	PhotoID           string
	EventID           string
	ClientIP          string
	UserAgent         string
	AccessType        string
	ClientFingerprint string
	AccessedAt        string
	Metadata          string
}

var SecurityAccessLog = SecurityAccessLogTable{
	Table:             "security.accesslog",
	ID:                "id",
	PhotoID:           "photoid",
	EventID:           "eventid",
	ClientIP:          "clientip",
	UserAgent:         "useragent",
	AccessType:        "accesstype",
	ClientFingerprint: "clientfingerprint",
	AccessedAt:        "accessedat",
	Metadata:          "metadata",
}
