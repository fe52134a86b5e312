package ffi

import (
	"context"
	"encoding/hex"
	"unsafe"

	"github.com/opd-ai/xmtpcore/mls"
)

// ArchiveOptions bounds what an archive includes. Elements is a bitmask
// (bit 0 messages, bit 1 consent); zero means everything. StartNs and EndNs,
// when positive, bound message timestamps.
type ArchiveOptions struct {
	Elements int32
	StartNs  int64
	EndNs    int64
}

// ArchiveMetadata describes an archive file without its contents.
type ArchiveMetadata struct {
	Version      int32
	ExportedAtNs int64
	Elements     int32
	StartNs      int64
	EndNs        int64
}

func coreArchiveOptions(opts *ArchiveOptions) mls.ArchiveOptions {
	if opts == nil {
		return mls.ArchiveOptions{}
	}
	return mls.ArchiveOptions{
		Elements: mls.ArchiveElements(opts.Elements),
		StartNs:  opts.StartNs,
		EndNs:    opts.EndNs,
	}
}

// ClientCreateArchive exports the client's records to a sealed file. key must
// be at least 32 bytes.
func ClientCreateArchive(h unsafe.Pointer, path string, opts *ArchiveOptions, key []byte) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return c.CreateArchive(path, coreArchiveOptions(opts), key)
	})
}

// ClientImportArchive merges a sealed archive file into the client's local
// state. Records already present are left untouched.
func ClientImportArchive(h unsafe.Pointer, path string, key []byte) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return c.ImportArchive(path, key)
	})
}

// ArchiveMetadataFromFile reads an archive file's metadata into out without
// importing its contents.
func ArchiveMetadataFromFile(path string, key []byte, out *ArchiveMetadata) int32 {
	if out == nil {
		return statusOf(invalidf("nil output metadata"))
	}
	return guardAsync(func(ctx context.Context) error {
		meta, err := mls.ReadArchiveMetadata(path, key)
		if err != nil {
			return err
		}
		*out = ArchiveMetadata{
			Version:      int32(meta.Version),
			ExportedAtNs: meta.ExportedAtNs,
			Elements:     int32(meta.Elements),
			StartNs:      meta.StartNs,
			EndNs:        meta.EndNs,
		}
		return nil
	})
}

// ClientSendSyncRequest asks the inbox's other installations to publish an
// archive of their records.
func ClientSendSyncRequest(h unsafe.Pointer, opts *ArchiveOptions) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return c.SendSyncRequest(coreArchiveOptions(opts))
	})
}

// ClientSendArchive publishes a pin-sealed archive to the inbox's sync group
// so another installation can import it with the same pin.
func ClientSendArchive(h unsafe.Pointer, opts *ArchiveOptions, pin string) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return c.SendArchive(coreArchiveOptions(opts), pin)
	})
}

// ClientProcessArchive imports a remote archive published for this inbox. An
// empty pin selects the newest archive.
func ClientProcessArchive(h unsafe.Pointer, pin string) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	return guardAsync(func(ctx context.Context) error {
		return c.ProcessArchive(pin)
	})
}

// ClientListAvailableArchives lists archives published for this inbox by
// other installations, newest first, and stores an owned list handle in out.
// daysCutoff limits how far back to look; zero or negative means no limit.
func ClientListAvailableArchives(h unsafe.Pointer, daysCutoff int64, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guardAsync(func(ctx context.Context) error {
		archives, err := c.ListAvailableArchives(daysCutoff)
		if err != nil {
			return err
		}
		*out = handles.put(kindArchiveList, archives)
		return nil
	})
}

// AvailableArchiveListLen returns the number of entries in an archive list,
// or -1 on error.
func AvailableArchiveListLen(h unsafe.Pointer) int32 {
	obj, err := handles.get(kindArchiveList, h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(len(obj.([]mls.AvailableArchive)))
}

// AvailableArchivePin returns the pin of the entry at index, or "" on error.
func AvailableArchivePin(h unsafe.Pointer, index int32) string {
	a, ok := archiveAt(h, index)
	if !ok {
		return ""
	}
	return a.Pin
}

// AvailableArchiveExportedAtNs returns the export timestamp of the entry at
// index, or 0 on error.
func AvailableArchiveExportedAtNs(h unsafe.Pointer, index int32) int64 {
	a, ok := archiveAt(h, index)
	if !ok {
		return 0
	}
	return a.ExportedAtNs
}

// AvailableArchiveSentBy returns the sending installation key of the entry at
// index, or nil on error.
func AvailableArchiveSentBy(h unsafe.Pointer, index int32) []byte {
	a, ok := archiveAt(h, index)
	if !ok {
		return nil
	}
	return a.SentByInstallation
}

func archiveAt(h unsafe.Pointer, index int32) (mls.AvailableArchive, bool) {
	obj, err := handles.get(kindArchiveList, h)
	if err != nil {
		statusOf(err)
		return mls.AvailableArchive{}, false
	}
	archives := obj.([]mls.AvailableArchive)
	if index < 0 || int(index) >= len(archives) {
		statusOf(invalidf("archive list index %d out of range [0,%d)", index, len(archives)))
		return mls.AvailableArchive{}, false
	}
	return archives[index], true
}

// AvailableArchiveListFree releases an archive list handle.
func AvailableArchiveListFree(h unsafe.Pointer) int32 {
	_, err := handles.take(kindArchiveList, h)
	return statusOf(err)
}

// ClientInboxState stores this inbox's identity state as a single-entry list
// handle in out. refresh is accepted for call-site symmetry.
func ClientInboxState(h unsafe.Pointer, refresh bool, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guardAsync(func(ctx context.Context) error {
		state, err := c.InboxState(refresh)
		if err != nil {
			return err
		}
		*out = handles.put(kindInboxStateList, []mls.InboxState{state})
		return nil
	})
}

// ClientFetchInboxStates stores the identity state of each given inbox as a
// list handle in out. Unknown inbox IDs are omitted from the list.
func ClientFetchInboxStates(h unsafe.Pointer, inboxIDs []string, out *unsafe.Pointer) int32 {
	c, err := clientFromHandle(h)
	if err != nil {
		return statusOf(err)
	}
	if out == nil {
		return statusOf(invalidf("nil output handle"))
	}
	return guardAsync(func(ctx context.Context) error {
		states, err := c.FetchInboxStates(inboxIDs)
		if err != nil {
			return err
		}
		*out = handles.put(kindInboxStateList, states)
		return nil
	})
}

// InboxStateListLen returns the number of entries in an inbox state list, or
// -1 on error.
func InboxStateListLen(h unsafe.Pointer) int32 {
	obj, err := handles.get(kindInboxStateList, h)
	if err != nil {
		statusOf(err)
		return -1
	}
	return int32(len(obj.([]mls.InboxState)))
}

// InboxStateInboxID returns the inbox ID of the entry at index, or "" on
// error.
func InboxStateInboxID(h unsafe.Pointer, index int32) string {
	s, ok := inboxStateAt(h, index)
	if !ok {
		return ""
	}
	return s.InboxID
}

// InboxStateRecoveryIdentifier returns the recovery identifier of the entry
// at index, or "" on error.
func InboxStateRecoveryIdentifier(h unsafe.Pointer, index int32) string {
	s, ok := inboxStateAt(h, index)
	if !ok {
		return ""
	}
	return s.RecoveryIdentifier
}

// InboxStateIdentifierCount returns how many account identifiers the entry
// at index carries, or -1 on error.
func InboxStateIdentifierCount(h unsafe.Pointer, index int32) int32 {
	s, ok := inboxStateAt(h, index)
	if !ok {
		return -1
	}
	return int32(len(s.Identifiers))
}

// InboxStateIdentifierAt returns one account identifier of the entry at
// index, or "" on error.
func InboxStateIdentifierAt(h unsafe.Pointer, index, identifierIndex int32) string {
	s, ok := inboxStateAt(h, index)
	if !ok {
		return ""
	}
	if identifierIndex < 0 || int(identifierIndex) >= len(s.Identifiers) {
		statusOf(invalidf("identifier index %d out of range [0,%d)", identifierIndex, len(s.Identifiers)))
		return ""
	}
	return s.Identifiers[identifierIndex]
}

// InboxStateInstallationCount returns how many installations the entry at
// index carries, or -1 on error.
func InboxStateInstallationCount(h unsafe.Pointer, index int32) int32 {
	s, ok := inboxStateAt(h, index)
	if !ok {
		return -1
	}
	return int32(len(s.InstallationIDs))
}

// InboxStateInstallationAt returns one installation key of the entry at
// index as lowercase hex, or "" on error.
func InboxStateInstallationAt(h unsafe.Pointer, index, installationIndex int32) string {
	s, ok := inboxStateAt(h, index)
	if !ok {
		return ""
	}
	if installationIndex < 0 || int(installationIndex) >= len(s.InstallationIDs) {
		statusOf(invalidf("installation index %d out of range [0,%d)", installationIndex, len(s.InstallationIDs)))
		return ""
	}
	return hex.EncodeToString(s.InstallationIDs[installationIndex])
}

func inboxStateAt(h unsafe.Pointer, index int32) (mls.InboxState, bool) {
	obj, err := handles.get(kindInboxStateList, h)
	if err != nil {
		statusOf(err)
		return mls.InboxState{}, false
	}
	states := obj.([]mls.InboxState)
	if index < 0 || int(index) >= len(states) {
		statusOf(invalidf("inbox state list index %d out of range [0,%d)", index, len(states)))
		return mls.InboxState{}, false
	}
	return states[index], true
}

// InboxStateListFree releases an inbox state list handle.
func InboxStateListFree(h unsafe.Pointer) int32 {
	_, err := handles.take(kindInboxStateList, h)
	return statusOf(err)
}
