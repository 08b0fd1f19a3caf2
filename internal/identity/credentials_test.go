package identity

import "testing"

func TestResolveCredentials(t *testing.T) {
	tests := []struct {
		name      string
		login     string
		wantField string
	}{
		{"plain email", "user@example.com", FieldEmail},
		{"subdomain email", "user@mail.example.co.uk", FieldEmail},
		{"plus tag email", "user+tag@example.com", FieldEmail},
		{"username", "johndoe", FieldUsername},
		{"username with dots", "john.doe", FieldUsername},
		{"at sign but no domain dot", "user@localhost", FieldUsername},
		{"display-name form is not a login email", "Ada <ada@example.com>", FieldUsername},
		{"empty identifier", "", FieldUsername},
		{"email of a nonexistent account still classifies as email", "nobody@example.com", FieldEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCredentials(tt.login, "secret")

			if got.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", got.Field, tt.wantField)
			}
			// The identifier and password pass through untouched.
			if got.Value != tt.login {
				t.Errorf("Value = %q, want %q", got.Value, tt.login)
			}
			if got.Password != "secret" {
				t.Errorf("Password = %q, want %q", got.Password, "secret")
			}
		})
	}
}

func TestResolveCredentialsNoNormalization(t *testing.T) {
	// Mixed case and whitespace are preserved — canonicalization is the
	// store's job, not the resolver's.
	got := ResolveCredentials("User@Example.COM", "p")
	if got.Value != "User@Example.COM" {
		t.Errorf("Value = %q, want input unchanged", got.Value)
	}
	if got.Field != FieldEmail {
		t.Errorf("Field = %q, want %q", got.Field, FieldEmail)
	}
}
