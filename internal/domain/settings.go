package domain

// Setting keys persisted in the settings table.
const (
	SettingGoogleAPIKey    = "google_api_key"
	SettingArkAPIKey       = "ark_api_key"
	SettingDefaultAuthMode = "default_auth_mode"
	SettingVertexSAPath    = "vertex_sa_path"
	SettingVertexProjectID = "vertex_project_id"
	SettingVertexLocation  = "vertex_location"
	SettingVertexGCSBucket = "vertex_gcs_bucket"
	SettingGCSHMACAccessID = "gcs_hmac_access_id"
	SettingGCSHMACSecret   = "gcs_hmac_secret"
)

// Provider identifiers referenced by the model catalog.
const (
	ProviderGoogle        = "google"
	ProviderVolcengineArk = "volcengine_ark"
)
