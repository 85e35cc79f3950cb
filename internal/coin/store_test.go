package coin

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTransfer(t *testing.T) {
	valid := TransferInput{
		FromUserID: "sender",
		ToUserID:   "recipient",
		Amount:     50,
		Reason:     "fuel advance",
	}

	tests := []struct {
		name    string
		modify  func(*TransferInput)
		wantErr error
	}{
		{"valid", func(in *TransferInput) {}, nil},
		{"missing sender", func(in *TransferInput) { in.FromUserID = "" }, nil},
		{"missing recipient", func(in *TransferInput) { in.ToUserID = "" }, nil},
		{"self transfer", func(in *TransferInput) { in.ToUserID = in.FromUserID }, ErrSelfTransfer},
		{"zero amount", func(in *TransferInput) { in.Amount = 0 }, nil},
		{"negative amount", func(in *TransferInput) { in.Amount = -5 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.modify(&in)
			err := ValidateTransfer(in)
			if tt.name == "valid" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeCursor(t *testing.T) {
	ts := time.Date(2025, 2, 11, 7, 45, 10, 0, time.UTC)
	id := "2MpL9w0vVaXI2qS9bJaVm8yKrPz"

	cursor := encodeCursor(ts, id)
	gotTime, gotID, err := decodeCursor(cursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotTime.Equal(ts) {
		t.Errorf("time mismatch: got %v, want %v", gotTime, ts)
	}
	if gotID != id {
		t.Errorf("id mismatch: got %q, want %q", gotID, id)
	}
}
