package domain

import "testing"

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name       string
		user       User
		wantErr    bool
		wantActive bool
	}{
		{"missing id", User{}, true, false},
		{"status defaults to active", User{ID: "u1"}, false, true},
		{"disabled", User{ID: "u1", Status: UserStatusDisabled}, false, false},
		{"deleted", User{ID: "u1", Status: UserStatusDeleted}, false, false},
		{"unknown status", User{ID: "u1", Status: "banned"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.user.IsActive() != tt.wantActive {
				t.Errorf("IsActive() = %v, want %v", tt.user.IsActive(), tt.wantActive)
			}
		})
	}
}
