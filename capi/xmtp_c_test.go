package main

import (
	"bytes"
	"runtime"
	"testing"
)

// Test files cannot use cgo types, so coverage here is limited to exports
// taking only handles. The full boundary surface is tested in package ffi.

func TestNilHandlesAreRejected(t *testing.T) {
	if st := xmtp_client_free(nil); st != -3 {
		t.Errorf("xmtp_client_free(nil) = %d, want -3", st)
	}
	if st := xmtp_conversation_free(nil); st != -3 {
		t.Errorf("xmtp_conversation_free(nil) = %d, want -3", st)
	}
	if st := xmtp_message_free(nil); st != -3 {
		t.Errorf("xmtp_message_free(nil) = %d, want -3", st)
	}
	if st := xmtp_stream_free(nil); st != -3 {
		t.Errorf("xmtp_stream_free(nil) = %d, want -3", st)
	}
	if st := xmtp_stream_stop(nil); st != -3 {
		t.Errorf("xmtp_stream_stop(nil) = %d, want -3", st)
	}
}

func TestNilStreamReportsClosed(t *testing.T) {
	if got := xmtp_stream_is_closed(nil); got != 1 {
		t.Errorf("xmtp_stream_is_closed(nil) = %d, want 1", got)
	}
}

func TestLastErrorLengthAfterRejectedCall(t *testing.T) {
	if st := xmtp_client_free(nil); st != -3 {
		t.Fatalf("xmtp_client_free(nil) = %d, want -3", st)
	}
	if n := xmtp_last_error_length(); n <= 0 {
		t.Errorf("xmtp_last_error_length() = %d, want > 0", n)
	}
}

func TestErrorMessageTruncatesAndTerminates(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if st := xmtp_client_free(nil); st != -3 {
		t.Fatalf("xmtp_client_free(nil) = %d, want -3", st)
	}
	full := int(xmtp_last_error_length())
	if full <= 0 {
		t.Fatalf("xmtp_last_error_length() = %d, want > 0", full)
	}

	// A roomy buffer holds the whole message plus the terminator.
	buf := make([]byte, full+1)
	if n := copyErrorMessage(buf); n != full {
		t.Errorf("copyErrorMessage(full) = %d, want %d", n, full)
	}
	if buf[full] != 0 {
		t.Error("full copy is not NUL-terminated")
	}

	// An undersized buffer truncates but still terminates.
	small := make([]byte, 4)
	if n := copyErrorMessage(small); n != 3 {
		t.Errorf("copyErrorMessage(small) = %d, want 3", n)
	}
	if small[3] != 0 {
		t.Error("truncated copy is not NUL-terminated")
	}
	if !bytes.Equal(small[:3], buf[:3]) {
		t.Errorf("truncated copy %q does not prefix the message %q", small[:3], buf[:full])
	}

	// Only the terminator fits.
	if n := copyErrorMessage(make([]byte, 1)); n != 0 {
		t.Errorf("copyErrorMessage(1 byte) = %d, want 0", n)
	}
	if n := copyErrorMessage(nil); n != -1 {
		t.Errorf("copyErrorMessage(nil) = %d, want -1", n)
	}
}

func TestActiveHandleCountStartsBalanced(t *testing.T) {
	before := xmtp_active_handle_count()
	// Failed creates must not leak registry entries.
	xmtp_client_free(nil)
	if after := xmtp_active_handle_count(); after != before {
		t.Errorf("handle count changed from %d to %d", before, after)
	}
}
