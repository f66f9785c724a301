// Package audit records entity writes and queries made through the DAO.
//
// An Entry names the entity, its identifier, the operation and attribute
// snapshots before and after the change. Snapshots are stored as canonical
// JSON (sorted keys, NFC strings) so identical states compare equal byte for
// byte.
//
// SQLRecorder writes entries to the audit_log table through the store's
// ambient transaction; EnsureSchema creates that table with goose
// migrations embedded in the binary. Memory keeps entries in process.
package audit
