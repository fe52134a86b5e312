package xmtpcore

import (
	"unsafe"

	"github.com/opd-ai/xmtpcore/ffi"
)

// ArchiveElements selects which record kinds an archive carries.
type ArchiveElements int32

const (
	ArchiveElementMessages ArchiveElements = 1 << iota
	ArchiveElementConsent
)

// ArchiveOptions bounds what an archive includes. A zero Elements value means
// everything; StartNs and EndNs, when positive, bound message timestamps.
type ArchiveOptions struct {
	Elements ArchiveElements
	StartNs  int64
	EndNs    int64
}

// ArchiveMetadata describes an archive file without its contents.
type ArchiveMetadata struct {
	Version      int32
	ExportedAtNs int64
	Elements     ArchiveElements
	StartNs      int64
	EndNs        int64
}

// AvailableArchive describes a remote archive another installation published
// for this inbox.
type AvailableArchive struct {
	Pin                string
	ExportedAtNs       int64
	SentByInstallation []byte
}

// InboxState is the registered identity state of one inbox.
type InboxState struct {
	InboxID            string
	RecoveryIdentifier string
	Identifiers        []string
	// InstallationIDs holds each installation key as lowercase hex.
	InstallationIDs []string
}

func ffiArchiveOptions(opts ArchiveOptions) *ffi.ArchiveOptions {
	return &ffi.ArchiveOptions{
		Elements: int32(opts.Elements),
		StartNs:  opts.StartNs,
		EndNs:    opts.EndNs,
	}
}

// CreateArchive exports the client's records to a sealed file at path.
// key must be at least 32 bytes.
func (c *Client) CreateArchive(path string, opts ArchiveOptions, key []byte) error {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ClientCreateArchive(h, path, ffiArchiveOptions(opts), key))
}

// ImportArchive merges a sealed archive file into local state. Records
// already present are left untouched.
func (c *Client) ImportArchive(path string, key []byte) error {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ClientImportArchive(h, path, key))
}

// ReadArchiveMetadata reads an archive file's metadata without importing it.
func ReadArchiveMetadata(path string, key []byte) (ArchiveMetadata, error) {
	defer pinThread()()
	var meta ffi.ArchiveMetadata
	if err := statusError(ffi.ArchiveMetadataFromFile(path, key, &meta)); err != nil {
		return ArchiveMetadata{}, err
	}
	return ArchiveMetadata{
		Version:      meta.Version,
		ExportedAtNs: meta.ExportedAtNs,
		Elements:     ArchiveElements(meta.Elements),
		StartNs:      meta.StartNs,
		EndNs:        meta.EndNs,
	}, nil
}

// SendSyncRequest asks the inbox's other installations to publish an archive
// of their records.
func (c *Client) SendSyncRequest(opts ArchiveOptions) error {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ClientSendSyncRequest(h, ffiArchiveOptions(opts)))
}

// SendArchive publishes a pin-sealed archive so another installation of this
// inbox can import it with the same pin.
func (c *Client) SendArchive(opts ArchiveOptions, pin string) error {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ClientSendArchive(h, ffiArchiveOptions(opts), pin))
}

// ProcessArchive imports a remote archive published for this inbox. An empty
// pin selects the newest archive.
func (c *Client) ProcessArchive(pin string) error {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return err
	}
	return statusError(ffi.ClientProcessArchive(h, pin))
}

// ListAvailableArchives lists archives published for this inbox by other
// installations, newest first. daysCutoff limits how far back to look; zero
// or negative means no limit.
func (c *Client) ListAvailableArchives(daysCutoff int64) ([]AvailableArchive, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var listHandle unsafe.Pointer
	if err := statusError(ffi.ClientListAvailableArchives(h, daysCutoff, &listHandle)); err != nil {
		return nil, err
	}
	defer ffi.AvailableArchiveListFree(listHandle)

	n := ffi.AvailableArchiveListLen(listHandle)
	if n < 0 {
		return nil, lastError(CategoryOperational, "archive list unavailable")
	}
	out := make([]AvailableArchive, 0, n)
	for i := int32(0); i < n; i++ {
		out = append(out, AvailableArchive{
			Pin:                ffi.AvailableArchivePin(listHandle, i),
			ExportedAtNs:       ffi.AvailableArchiveExportedAtNs(listHandle, i),
			SentByInstallation: ffi.AvailableArchiveSentBy(listHandle, i),
		})
	}
	return out, nil
}

// InboxState returns this inbox's registered identity state.
func (c *Client) InboxState(refresh bool) (InboxState, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return InboxState{}, err
	}
	var listHandle unsafe.Pointer
	if err := statusError(ffi.ClientInboxState(h, refresh, &listHandle)); err != nil {
		return InboxState{}, err
	}
	defer ffi.InboxStateListFree(listHandle)

	states := takeInboxStates(listHandle)
	if len(states) == 0 {
		return InboxState{}, lastError(CategoryOperational, "inbox state unavailable")
	}
	return states[0], nil
}

// FetchInboxStates returns the registered identity state of each given
// inbox. Unknown inbox IDs are omitted from the result.
func (c *Client) FetchInboxStates(inboxIDs []string) ([]InboxState, error) {
	defer pinThread()()
	h, err := c.raw()
	if err != nil {
		return nil, err
	}
	var listHandle unsafe.Pointer
	if err := statusError(ffi.ClientFetchInboxStates(h, inboxIDs, &listHandle)); err != nil {
		return nil, err
	}
	defer ffi.InboxStateListFree(listHandle)
	return takeInboxStates(listHandle), nil
}

// takeInboxStates copies every entry out of an inbox state list handle. The
// caller still frees the handle.
func takeInboxStates(listHandle unsafe.Pointer) []InboxState {
	n := ffi.InboxStateListLen(listHandle)
	if n < 0 {
		return nil
	}
	out := make([]InboxState, 0, n)
	for i := int32(0); i < n; i++ {
		s := InboxState{
			InboxID:            ffi.InboxStateInboxID(listHandle, i),
			RecoveryIdentifier: ffi.InboxStateRecoveryIdentifier(listHandle, i),
		}
		for j := int32(0); j < ffi.InboxStateIdentifierCount(listHandle, i); j++ {
			s.Identifiers = append(s.Identifiers, ffi.InboxStateIdentifierAt(listHandle, i, j))
		}
		for j := int32(0); j < ffi.InboxStateInstallationCount(listHandle, i); j++ {
			s.InstallationIDs = append(s.InstallationIDs, ffi.InboxStateInstallationAt(listHandle, i, j))
		}
		out = append(out, s)
	}
	return out
}
