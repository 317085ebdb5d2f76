package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client.
var UserAgent = "Go-MusicBot/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName           = "Go MusicBot"
	AppID             = "com.github.tartampluch.go-musicbot"
	BinaryName        = "musicbot"
	KeyringService    = "com.github.tartampluch.go-musicbot"
	LocalhostBindAddr = "127.0.0.1"
	LogFileName       = "musicbot.log"
	SettingsFileName  = "musicbot.yaml"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for sensitive files like logs.
	FilePermUserRW fs.FileMode = 0600

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Commands, Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	FlagDebug  = "debug"
	FlagConfig = "config"
	FlagJSON   = "json"
	FlagDays   = "days"

	FlagDescDebug   = "Enable debug logging to stdout"
	FlagDescConfig  = "Path to the YAML settings file"
	FlagDescDays    = "Number of days covered by the calendar feed"
	FlagDescJSON    = "Print the result as JSON"
	FlagDescSubject = "Album title or musician name to cross-check against the catalog"
	FlagDescArtist  = "Artist of the album given with --subject"
	FlagDescKind    = "Subject kind: album or birthday"

	FlagSubject = "subject"
	FlagArtist  = "artist"
	FlagKind    = "kind"

	CmdRunUse      = "run"
	CmdCalendarUse = "calendar"

	CmdRunShort      = "Run the scheduled posting loop"
	CmdCheckUse      = "check DATE"
	CmdCheckShort    = "Check whether DATE is an exact anniversary today (read-only)"
	CmdCalendarShort = "Print the reference anniversaries as an iCalendar feed"
	CmdRootShort     = "Scheduled music content bot with strict anniversary verification"

	MsgVersionOutput = "%s version %s (%s/%s)\n"
	FormatCheckMatch = "%s is the %s anniversary of %s (today %s)\n"
	FormatCheckMiss  = "%s: %s (today %s)\n"
)

// -----------------------------------------------------------------------------
// Environment Variables (credential fallback when the keyring is empty)
// -----------------------------------------------------------------------------

const (
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvCatalogPassword = "MUSICBOT_CATALOG_PASSWORD"
	EnvYouTubeAPIKey   = "YOUTUBE_API_KEY"

	KeyringUserGemini  = "gemini"
	KeyringUserCatalog = "catalog"
	KeyringUserYouTube = "youtube"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultCycleInterval          = 15 * time.Minute
	DefaultPostInterval           = 3 * time.Hour
	DefaultRecommendationInterval = 24 * time.Hour
	DefaultNewReleaseInterval     = 24 * time.Hour
	DefaultMaxImageRetries        = 3

	DefaultBackoffBase   = 1 * time.Minute
	DefaultBackoffMax    = 30 * time.Minute
	DefaultBackoffJitter = 30 * time.Second

	// DefaultMaxConsecutiveFailures of zero retries failed cycles forever.
	DefaultMaxConsecutiveFailures = 0

	DefaultLedgerSweepInterval = 24 * time.Hour

	DefaultAgentModel    = "gemini-2.0-flash"
	DefaultImageModel    = "imagen-4.0-generate-001"
	DefaultAgentMaxTurns = 6
	DefaultVideoRegion   = "US"
	DefaultVideoResults  = 5
	MaxVideoResults      = 25
	DefaultLanguage      = "en"
	DefaultTimezone      = "Local"
	DefaultPort          = "18080"
	DefaultCalendarDays  = 30

	SourceModeWeb   = "web"
	SourceModeLocal = "local"
	SourceModeNone  = ""

	// WatchDebounce coalesces the burst of write events editors emit on save.
	WatchDebounce = 500 * time.Millisecond
)

// SupportedLanguages defines the list of available instruction languages (ISO 639-1).
var SupportedLanguages = []string{"en", "fr"}

// ImageFailureMarkers are substrings of a post step outcome that indicate the
// attached image URL was rejected.
var ImageFailureMarkers = []string{
	"invalid image URL",
	"Image URL",
	"URL format",
	"403 Forbidden",
}

// -----------------------------------------------------------------------------
// Verification
// -----------------------------------------------------------------------------

const (
	SubjectAlbum    = "album"
	SubjectBirthday = "birthday"

	// ApprovalIDMaxSubject bounds the sanitized subject embedded in approval ids.
	ApprovalIDMaxSubject = 48
	FormatApprovalID     = "%s-%s-%d-%d"
	FormatAlbumKey       = "%s by %s"
	FormatMonthDay       = "%02d-%02d"
	FormatISODate        = "%04d-%02d-%02d"

	// Long-form layouts accepted by the date claim parser, tried in order.
	DateLayoutLongMonth  = "January 2, 2006"
	DateLayoutShortMonth = "Jan 2, 2006"
	DateFormatFullDash   = "2006-01-02"

	FallbackName     = "Unknown"
	FallbackMusician = "musician"

	FormatAlbumPrompt    = `"%s" by %s album cover art, iconic album artwork, detailed illustration, music history`
	FormatBirthdayPrompt = "portrait of %s, %s, professional photographic style, music artist, detailed face"
)

// Verification reasons returned to the agent. These are payload values, not errors.
const (
	ReasonApproved          = "approved"
	ReasonMatch             = "today is the exact match date"
	ReasonMissingAlbum      = "release_date, album_name and artist_name are required"
	ReasonMissingBirthday   = "birth_date and musician_name are required"
	ReasonMissingDate       = "date is required"
	ReasonMissingApprovalID = "approval_id is required"
	ReasonUnparseable       = "unparseable date"
	ReasonNotMatch          = "today is not the exact match date"
	ReasonReferenceMismatch = "reference date mismatch"
	ReasonUnknownApproval   = "approval id is not valid or has expired"
	ReasonMissingBatchField = "missing required fields (name or releaseDate)"
	ReasonBatchEmpty        = "albums list is required"
	ReasonBatchJSON         = "albums must be a JSON array of {name, artist, releaseDate}"
)

// -----------------------------------------------------------------------------
// Translation Keys (agent instructions)
// -----------------------------------------------------------------------------

const (
	TKeyPersona        = "InstrPersona"
	TKeyOneAction      = "InstrOneAction"
	TKeyCurrentAction  = "InstrCurrentAction"
	TKeyForbidOthers   = "InstrForbidOthers"
	TKeyImageProcess   = "InstrImageProcess"
	TKeyVerification   = "InstrVerification"
	TKeyGuidelines     = "InstrGuidelines"
	TKeyRegenerate     = "InstrRegenerate"
	TKeyNoImage        = "InstrNoImage"
	TKeyGenre          = "InstrGenre"
	TKeyGenreSubgenres = "InstrGenreSubgenres"
	TKeyReminder       = "InstrReminder"
	TKeyVideos         = "InstrVideos"

	// TKeyActionPrefix + ActionKind names the per-action description.
	TKeyActionPrefix = "InstrAction_"
)

// -----------------------------------------------------------------------------
// Agent Tools
// -----------------------------------------------------------------------------

const (
	ToolRequestAnniversary = "request_anniversary_post_approval"
	ToolRequestBirthday    = "request_birthday_post_approval"
	ToolVerifyApproval     = "verify_approval_before_posting"
	ToolCheckDate          = "verify_anniversary_date"
	ToolCheckBatch         = "verify_multiple_anniversaries"

	ToolPostTweet      = "post_tweet"
	ToolUploadAndTweet = "upload_image_and_tweet"
	ToolReplyTweet     = "reply_tweet"
	ToolLikeTweet      = "like_tweet"
	ToolQuoteTweet     = "quote_tweet"
	ToolSearchTweets   = "search_tweets"

	ToolGenerateImage = "generate_image"
	ToolSearchVideos  = "search_music_videos"
	ToolNewVideos     = "get_new_music_releases"

	ArgReleaseDate  = "release_date"
	ArgAlbumName    = "album_name"
	ArgArtistName   = "artist_name"
	ArgBirthDate    = "birth_date"
	ArgMusicianName = "musician_name"
	ArgInfo         = "additional_info"
	ArgApprovalID   = "approval_id"
	ArgDate         = "date"
	ArgAlbums       = "albums"
	ArgText         = "text"
	ArgImageURL     = "image_url"
	ArgTweetID      = "tweet_id"
	ArgQuery        = "query"
	ArgTopic        = "topic"
	ArgPrompt       = "prompt"
	ArgImageID      = "image_id"
	ArgMaxResults   = "max_results"
	ArgRegion       = "region_code"

	TopicAnniversary    = "anniversary"
	TopicBirthday       = "birthday"
	TopicRecommendation = "recommendation"
	TopicNewRelease     = "new_release"
	TopicGeneral        = "general"

	ResultKeyStatus  = "status"
	ResultKeyMessage = "message"
	ResultKeyID      = "id"
	ResultKeyResults = "results"
	ResultKeyAuthor  = "author"
	ResultKeyImageID = "image_id"
	ResultKeySize    = "size_bytes"
	ResultKeyVideos  = "videos"
	StatusDone       = "done"
	StatusFailed     = "failed"

	FormatToolTrace = "%s: %s"
	// FormatStepPrompt expects the upper-cased action name.
	FormatStepPrompt = "Perform the %s action now."
	// DryRunIDPrefix marks identifiers issued by the logging publisher.
	DryRunIDPrefix = "dry-run-"
	// GeneratedImagePrefix marks ids of images kept in the gallery.
	GeneratedImagePrefix = "img-"
	// GalleryLimit bounds how many generated images stay addressable.
	GalleryLimit = 8
	// ImageAspectRatio is requested from the image model; posts are square.
	ImageAspectRatio = "1:1"
	// MinImageBytes rejects truncated downloads before they reach the publisher.
	MinImageBytes = 1024
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	ICalVersion   = "2.0"
	ICalProdid    = "-//Go MusicBot//Anniversaries//EN"
	ICalCalName   = "Music Anniversaries"
	ICalMethod    = "PUBLISH"
	ICalScale     = "GREGORIAN"
	ICalDomain    = "gomusicbot"
	UIDSalt       = "go-musicbot-v1-"
	UIDHashLength = 16

	PropUID         = "UID"
	PropSummary     = "SUMMARY"
	PropDTStart     = "DTSTART"
	PropDTStamp     = "DTSTAMP"
	PropRefresh     = "REFRESH-INTERVAL"
	PropCategories  = "CATEGORIES"
	PropDescription = "DESCRIPTION"
	PropVersion     = "VERSION"
	PropProdid      = "PRODID"
	PropXWRCalName  = "X-WR-CALNAME"
	PropCalScale    = "CALSCALE"
	PropMethod      = "METHOD"

	VCardBDAY = "BDAY"
	VCardFN   = "FN"
	VCardN    = "N"
	VCardNote = "NOTE"

	DefaultICalRefresh = 1 * time.Hour

	FormatHashInput       = "%s|%s|%s"
	FormatUID             = "%s-%d@%s"
	FormatSummaryAlbum    = "%s anniversary: %s by %s"
	FormatSummaryBirthday = "%s birthday: %s"
	FormatSummaryNoYear   = "Birthday: %s"

	// StubVCalendar is the minimal valid iCalendar object used when no events are found.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ImageFetchTimeout   = 15 * time.Second
	ShutdownTimeout     = 5 * time.Second
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerIdleTimeout   = 60 * time.Second
	RetryAfterSeconds   = "10"
	AllowedMethods      = "GET, HEAD"
	MaxHTTPResponseSize = 64 * 1024 * 1024 // 64MB
	MaxImageSize        = 16 * 1024 * 1024 // 16MB
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"
	RouteCalendar       = "/calendar.ics"
	RouteStatus         = "/status"

	YouTubeBaseURL       = "https://www.googleapis.com/youtube/v3"
	YouTubeSearchPath    = "/search"
	YouTubeVideosPath    = "/videos"
	YouTubeMusicCategory = "10"
	YouTubeChartPopular  = "mostPopular"
	YouTubeTypeVideo     = "video"
	YouTubePartSnippet   = "snippet"
	YouTubePartStats     = "snippet,statistics"
	FormatYouTubeWatch   = "https://youtube.com/watch?v=%s"

	// NewReleaseWindow is how recent a popular video must be to count as new.
	NewReleaseWindow = 30 * 24 * time.Hour
	AddrSeparator    = ":"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType     = "Content-Type"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderRetryAfter      = "Retry-After"
	HeaderAllow           = "Allow"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderUserAgent       = "User-Agent"
	HeaderAccept          = "Accept"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeJSON            = "application/json"
	MimeImagePrefix     = "image/"
	MimeAcceptImage     = "image/jpeg,image/*"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"
	CacheControlNoStore = "no-store"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrLocalPathEmpty    = "configuration error: local path is empty"
	ErrWebURLEmpty       = "configuration error: web URL is empty"
	ErrFetcherMissing    = "internal error: network fetcher is not initialized"
	ErrModeUnsupport     = "configuration error: unsupported source mode"
	ErrSettingsRead      = "failed to read settings file"
	ErrSettingsDecode    = "failed to decode settings file"
	ErrSettingsInvalid   = "invalid settings"
	ErrTimezone          = "unknown timezone"
	ErrServerStartup     = "server startup failed"
	ErrServerShutdown    = "server shutdown failed"
	ErrPortRequired      = "server port is required"
	ErrInvalidURL        = "invalid URL structure"
	ErrProtocol          = "unsupported protocol scheme (http/https only)"
	ErrCatalogLoad       = "failed to load reference catalog"
	ErrCatalogDecode     = "failed to decode album catalog"
	ErrICalEncode        = "failed to encode iCalendar data"
	ErrDateParse         = "unable to parse date"
	ErrLogFile           = "failed to open log file"
	ErrCacheDir          = "could not determine user cache dir"
	ErrCreateDir         = "could not create app cache dir"
	ErrAppFailed         = "application failed unexpectedly"
	ErrWriteResp         = "failed to write response body"
	ErrLocalesAccess     = "failed to access embedded locales"
	ErrLocaleLoad        = "failed to load locale file"
	ErrCredentialMissing = "credential not found in keyring or environment"
	ErrAgentInit         = "failed to create agent client"
	ErrAgentGenerate     = "agent generation failed"
	ErrAgentEmpty        = "agent returned no candidates"
	ErrStepFailed        = "agent step failed"
	ErrRetriesExhausted  = "consecutive cycle failures exhausted"
	ErrUnknownTool       = "unknown tool"
	ErrToolArgs          = "invalid tool arguments"
	ErrActionClaimed     = "an action was already performed this cycle"
	ErrApprovalRequired  = "anniversary and birthday posts require a valid approval_id"
	ErrTextRequired      = "text is required"
	ErrTweetIDRequired   = "tweet_id is required"
	ErrQueryRequired     = "query is required"
	ErrHashtags          = "remove hashtags from the post text"
	ErrImageURLInvalid   = "invalid image URL"
	ErrImageURLFormat    = "Image URL has an unsupported URL format"
	ErrImageForbidden    = "image download refused: 403 Forbidden"
	ErrImageStatus       = "Image URL returned an unexpected status"
	ErrImageContentType  = "Image URL did not return an image"
	ErrImageTooSmall     = "Image URL returned a truncated image"
	ErrWatcherInit       = "failed to start settings watcher"
	ErrMaxTurns          = "agent stopped after the maximum number of turns"
	ErrToolNotAllowed    = "tool is not available for the current action"
	ErrTopicInvalid      = "unknown topic"
	ErrTopicMismatch     = "approval_id does not cover this topic"
	ErrImageTooLarge     = "Image URL exceeds the size limit"
	ErrImageGenerate     = "Image URL unavailable: image generation failed"
	ErrImageEmpty        = "Image URL unavailable: no image was generated"
	ErrImageIDUnknown    = "invalid image URL: unknown image_id"
	ErrPromptRequired    = "prompt is required"
	ErrVideoRequest      = "video catalog request failed"
	ErrVideoStatus       = "video catalog returned an unexpected status"
	ErrVideoDecode       = "failed to decode video catalog response"
)

// -----------------------------------------------------------------------------
// HTTP Server Responses
// -----------------------------------------------------------------------------

const (
	HTTPMsgInitializing = "Calendar initializing, please try again shortly."
	HTTPMsgMethodNotAll = "Method Not Allowed"
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStarting     = "Starting application"
	MsgAppStop         = "Application stopped gracefully"
	MsgLogWarning      = "Warning: %s at %s: %v\n"
	MsgCycleStart      = "Running agent step"
	MsgCycleDone       = "Cycle completed"
	MsgCycleFailed     = "Cycle failed, scheduling retry"
	MsgImageRetry      = "Image URL validation failed, retrying with regeneration hint"
	MsgImageExhausted  = "Max image retries reached, next post will be text-only"
	MsgNoImageFallback = "Max image retries reached, posting without image"
	MsgRunnerStart     = "Cycle runner started"
	MsgRunnerStop      = "Cycle runner stopping due to context cancellation"
	MsgPolicyUpdated   = "Scheduling policy updated"
	MsgSweeperStart    = "Approval ledger sweeper started"
	MsgLedgerCleared   = "Approval ledger cleared"
	MsgApprovalGranted = "Approval granted"
	MsgApprovalDenied  = "Approval denied"
	MsgApprovalLookup  = "Approval lookup"
	MsgCatalogLoaded   = "Reference catalog loaded"
	MsgSkippedCard     = "Skipping malformed vCard"
	MsgSkippedDate     = "Skipping invalid date format"
	MsgSkippedAlbum    = "Skipping album with invalid release date"
	MsgGenSuccess      = "Calendar generation successful"
	MsgServerListen    = "HTTP server listening"
	MsgServerStop      = "Shutting down HTTP server..."
	MsgCacheUpdated    = "Calendar cache updated"
	MsgLocaleSkip      = "Skipping non-locale file"
	MsgLocaleBadName   = "Skipping malformed locale filename"
	MsgLocaleLoaded    = "Locale loaded successfully"
	MsgTransMissing    = "Missing translation key"
	MsgCredFallback    = "Keyring lookup failed, falling back to environment"
	MsgToolCall        = "Tool invoked"
	MsgToolRefused     = "Tool refused"
	MsgDryRunPublish   = "Dry-run publish"
	MsgImageFetch      = "Fetching image URL"
	MsgAgentTurn       = "Agent turn"
	MsgAgentDone       = "Agent step finished"
	MsgSettingsReload  = "Settings file changed, reloading"
	MsgImageGenerated  = "Image generated"
	MsgImagesDisabled  = "No image model configured, image generation disabled"
	MsgVideosDisabled  = "No YouTube API key, video tools disabled"
	MsgVideoSearch     = "Querying video catalog"
	MsgTimezoneUpdated = "Timezone updated"
	MsgSweepUpdated    = "Ledger sweep interval updated"
	MsgSettingsBad     = "Ignoring invalid settings reload"
	MsgWatcherStop     = "Settings watcher stopped"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent  = "component"
	LogKeyError      = "error"
	LogKeyURL        = "url"
	LogKeyStatus     = "status_code"
	LogKeyFile       = "file"
	LogKeyLang       = "lang"
	LogKeyKey        = "key"
	LogKeyPort       = "port"
	LogKeyMode       = "mode"
	LogKeyInterval   = "interval"
	LogKeyUser       = "user"
	LogKeySizeBytes  = "size_bytes"
	LogKeyETag       = "etag"
	LogKeyValue      = "value"
	LogKeyCount      = "count"
	LogKeyName       = "name"
	LogKeyDuration   = "duration_ms"
	LogKeyCycle      = "cycle_id"
	LogKeyAction     = "action"
	LogKeyAttempt    = "attempt"
	LogKeyMaxAttempt = "max_attempts"
	LogKeyDelay      = "delay"
	LogKeyApproval   = "approval_id"
	LogKeySubject    = "subject"
	LogKeyKind       = "kind"
	LogKeyReason     = "reason"
	LogKeyDate       = "date"
	LogKeyTool       = "tool"
	LogKeyAlbums     = "albums"
	LogKeyMusicians  = "musicians"
	LogKeyOutcome    = "outcome"
	LogKeyTurn       = "turn"
	LogKeyID         = "id"
	LogKeyTarget     = "target_id"
	LogKeyCalls      = "calls"
	LogKeyQuery      = "query"
	LogKeyRegion     = "region"
	LogKeyTimezone   = "timezone"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyCommit  = "commit"
	LogKeyBuilt   = "built"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompMain     = "main"
	CompEngine   = "engine"
	CompLedger   = "ledger"
	CompCatalog  = "catalog"
	CompFetcher  = "fetcher"
	CompRunner   = "runner"
	CompAgent    = "agent"
	CompTools    = "tools"
	CompServer   = "server"
	CompI18n     = "i18n"
	CompSettings = "settings"
	CompImages   = "images"
	CompVideos   = "videos"
)
