package synthserver

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

// CredentialsEnv holds the service account JSON used for synthesis.
const CredentialsEnv = "GOOGLE_CREDENTIALS"

// legacyCredentialsEnv is read by Google client libraries but ignored here.
const legacyCredentialsEnv = "GOOGLE_APPLICATION_CREDENTIALS"

// DebugReport describes the credential setup without exposing secrets.
type DebugReport struct {
	Timestamp       time.Time       `json:"timestamp"`
	Checks          map[string]bool `json:"checks"`
	JSONError       string          `json:"jsonError,omitempty"`
	Info            *CredentialInfo `json:"info,omitempty"`
	OK              bool            `json:"ok"`
	Error           string          `json:"error,omitempty"`
	Warning         string          `json:"warning,omitempty"`
	Recommendations []string        `json:"recommendations"`
}

// CredentialInfo is a redacted view of the service account.
type CredentialInfo struct {
	ProjectID     string `json:"projectId"`
	ClientEmail   string `json:"clientEmail"`
	Type          string `json:"type"`
	PrivateKeyLen int    `json:"privateKeyLength"`
}

type serviceAccount struct {
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	Type        string `json:"type"`
}

// Diagnose inspects the environment through getenv.
func Diagnose(getenv func(string) string) DebugReport {
	if getenv == nil {
		getenv = os.Getenv
	}

	r := DebugReport{
		Timestamp:       time.Now().UTC(),
		Checks:          make(map[string]bool),
		Recommendations: []string{},
	}

	raw := getenv(CredentialsEnv)
	r.Checks["credentialsExists"] = raw != ""

	if raw == "" {
		r.Error = CredentialsEnv + " is not set"
		r.Recommendations = append(r.Recommendations, "Set "+CredentialsEnv+" to the service account JSON")
	} else {
		var sa serviceAccount
		if err := json.Unmarshal([]byte(raw), &sa); err != nil {
			r.JSONError = err.Error()
			r.Recommendations = append(r.Recommendations, "Fix the JSON in "+CredentialsEnv)
		} else {
			r.Checks["credentialsValidJson"] = true
			r.Checks["hasProjectId"] = sa.ProjectID != ""
			r.Checks["hasPrivateKey"] = sa.PrivateKey != ""
			r.Checks["hasClientEmail"] = sa.ClientEmail != ""
			r.Checks["hasType"] = sa.Type != ""
			r.Info = &CredentialInfo{
				ProjectID:     sa.ProjectID,
				ClientEmail:   redact(sa.ClientEmail),
				Type:          sa.Type,
				PrivateKeyLen: len(sa.PrivateKey),
			}
			for _, f := range []struct{ check, field string }{
				{"hasProjectId", "project_id"},
				{"hasPrivateKey", "private_key"},
				{"hasClientEmail", "client_email"},
			} {
				if !r.Checks[f.check] {
					r.Recommendations = append(r.Recommendations, "Credentials are missing "+f.field)
				}
			}
		}
	}

	r.Checks["oldCredentialsExists"] = getenv(legacyCredentialsEnv) != ""
	if r.Checks["oldCredentialsExists"] {
		r.Warning = legacyCredentialsEnv + " is set but unused"
		r.Recommendations = append(r.Recommendations, "Remove "+legacyCredentialsEnv)
	}

	r.OK = r.Checks["credentialsExists"] &&
		r.Checks["credentialsValidJson"] &&
		r.Checks["hasProjectId"] &&
		r.Checks["hasPrivateKey"] &&
		r.Checks["hasClientEmail"]
	if r.OK {
		r.Recommendations = append(r.Recommendations, "If synthesis still fails, check that the Text-to-Speech API is enabled for the project")
	}
	return r
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 10 {
		return s[:10] + "..."
	}
	return s + "..."
}

func (h *handler) debug(c *gin.Context) {
	c.JSON(http.StatusOK, Diagnose(h.getenv))
}
