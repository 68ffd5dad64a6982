// Package storage persists the license server's data: authorized keys, the
// ban list, per-key connection records, failed logins and the attempts log.
//
// FileStore keeps everything as JSON files in a data directory, rereading
// the key and ban files on every call so edits made with licensectl take
// effect without a restart. SheetsKeyStore serves authorized keys from a
// Google Sheet instead.
package storage
