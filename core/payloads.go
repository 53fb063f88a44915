package core

// Payload is implemented by every tagged variant body. PayloadType returns
// the versioned discriminator string stored in Event.Type and nested as
// canonicalPayload.Type (e.g. "post:v1"). Dispatch on the tag happens in
// projections and the node loop, never inside Payload itself — per §9's
// design note, "every projection dispatches on the tag", not the type.
type Payload interface {
	PayloadType() string
}

// ProfilePayload advertises an author's public profile and key-agreement
// key for encrypted messaging (§4.2).
type ProfilePayload struct {
	Name             string  `json:"name"`
	Bio              string  `json:"bio"`
	FounderID        *uint32 `json:"founder_id,omitempty"`
	EncryptionPubkey *string `json:"encryption_pubkey,omitempty"`
}

func (ProfilePayload) PayloadType() string { return "profile:v1" }

// PostPayload is a free-text post, optionally geotagged.
type PostPayload struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
	Geohash     *string  `json:"geohash,omitempty"`
}

func (PostPayload) PayloadType() string { return "post:v1" }

// ProofPayload is a vouch: author attests to Target's standing.
type ProofPayload struct {
	Target string `json:"target"`
}

func (ProofPayload) PayloadType() string { return "proof:v1" }

// MessagePayload is an end-to-end encrypted direct message.
type MessagePayload struct {
	Recipient       string `json:"recipient"`
	Ciphertext      string `json:"ciphertext"`
	Nonce           string `json:"nonce"`
	EphemeralPubkey string `json:"ephemeral_pubkey"`
}

func (MessagePayload) PayloadType() string { return "message:v1" }

// GroupPayload declares a named group with a fixed member set.
type GroupPayload struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (GroupPayload) PayloadType() string { return "group:v1" }

// TokenAction enumerates the token event actions (§3).
type TokenAction string

const (
	TokenMint          TokenAction = "Mint"
	TokenBurn          TokenAction = "Burn"
	TokenTransferClaim TokenAction = "TransferClaim"
	TokenEscrow        TokenAction = "Escrow"
	TokenMintReward    TokenAction = "MintReward"
)

// TokenPayload carries every balance-affecting action.
type TokenPayload struct {
	Action TokenAction `json:"action"`
	Amount uint64      `json:"amount"`
	Target *string     `json:"target,omitempty"`
	Memo   *string     `json:"memo,omitempty"`
	RefCID *string     `json:"ref_cid,omitempty"`
}

func (TokenPayload) PayloadType() string { return "token:v1" }

// WebPayload is a published page.
type WebPayload struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (WebPayload) PayloadType() string { return "web:v1" }

// NamePayload binds a human-readable name to a target id.
type NamePayload struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

func (NamePayload) PayloadType() string { return "name:v1" }

// BlobPayload references binary content stored in the blob side table; Data
// is base64 text inside the event, decoded into the side table at ingest.
type BlobPayload struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (BlobPayload) PayloadType() string { return "blob:v1" }

// ListingStatus enumerates the marketplace listing lifecycle.
type ListingStatus string

const (
	ListingActive    ListingStatus = "Active"
	ListingSold      ListingStatus = "Sold"
	ListingCancelled ListingStatus = "Cancelled"
)

// ListingPayload is a marketplace offer; updates chain via RefCID to the
// first listing in the same "chain id" group (§4.5 Active listings).
type ListingPayload struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       uint64        `json:"price"`
	ImageCID    *string       `json:"image_cid,omitempty"`
	Status      ListingStatus `json:"status"`
	RefCID      *string       `json:"ref_cid,omitempty"`
	Category    *string       `json:"category,omitempty"`
}

func (ListingPayload) PayloadType() string { return "listing:v1" }

// ContractPayload deploys a contract. Code is WASM (raw or hex) or, absent
// WASM magic bytes, operates in KV fallback mode (§4.6).
type ContractPayload struct {
	Code       string `json:"code"`
	InitParams string `json:"init_params"`
}

func (ContractPayload) PayloadType() string { return "contract:v1" }

// ContractCallPayload invokes a deployed contract's exported method.
type ContractCallPayload struct {
	ContractID string `json:"contract_id"`
	Method     string `json:"method"`
	Params     string `json:"params"`
}

func (ContractCallPayload) PayloadType() string { return "contract_call:v1" }

// ProposalKind enumerates the governance proposal types, each with its own
// petition/voting/pass-fraction row (§4.5.2).
type ProposalKind string

const (
	ProposalStandard        ProposalKind = "Standard"
	ProposalConstitutional  ProposalKind = "Constitutional"
	ProposalEmergency       ProposalKind = "Emergency"
	ProposalSetTax          ProposalKind = "SetTax"
	ProposalDefineMinistries ProposalKind = "DefineMinistries"
)

// ProposalPayload is a governance proposal. Param carries the SetTax rate
// or a JSON-encoded ministry list, depending on Kind.
type ProposalPayload struct {
	Kind  ProposalKind `json:"kind"`
	Title string       `json:"title"`
	Body  string       `json:"body"`
	Param *string      `json:"param,omitempty"`
}

func (ProposalPayload) PayloadType() string { return "proposal:v1" }

// VoteChoice enumerates a proposal vote's choice.
type VoteChoice string

const (
	VoteYes              VoteChoice = "Yes"
	VoteNo               VoteChoice = "No"
	VoteAbstain          VoteChoice = "Abstain"
	VotePetitionSignature VoteChoice = "PetitionSignature"
)

// VotePayload casts a single vote on a proposal.
type VotePayload struct {
	ProposalID string     `json:"proposal_id"`
	Choice     VoteChoice `json:"choice"`
}

func (VotePayload) PayloadType() string { return "vote:v1" }

// CandidacyPayload declares a candidacy for a named ministry.
type CandidacyPayload struct {
	Ministry string `json:"ministry"`
	Platform string `json:"platform"`
}

func (CandidacyPayload) PayloadType() string { return "candidacy:v1" }

// CandidacyVotePayload casts a vote for a candidacy.
type CandidacyVotePayload struct {
	CandidacyID string `json:"candidacy_id"`
}

func (CandidacyVotePayload) PayloadType() string { return "candidacy_vote:v1" }

// RecallPayload opens a recall proceeding against a sitting official.
type RecallPayload struct {
	TargetOfficial string `json:"target_official"`
	Ministry       string `json:"ministry"`
	Reason         string `json:"reason"`
}

func (RecallPayload) PayloadType() string { return "recall:v1" }

// RecallVoteChoice enumerates a recall vote's choice.
type RecallVoteChoice string

const (
	RecallRemove RecallVoteChoice = "Remove"
	RecallKeep   RecallVoteChoice = "Keep"
)

// RecallVotePayload casts a single vote on a recall.
type RecallVotePayload struct {
	RecallID string           `json:"recall_id"`
	Choice   RecallVoteChoice `json:"choice"`
}

func (RecallVotePayload) PayloadType() string { return "recall_vote:v1" }

// ApplicationPayload applies for a certifiable role.
type ApplicationPayload struct {
	Role      string `json:"role"`
	Statement string `json:"statement"`
}

func (ApplicationPayload) PayloadType() string { return "application:v1" }

// ApplicationVotePayload approves or rejects an application.
type ApplicationVotePayload struct {
	ApplicationID string `json:"application_id"`
	Approve       bool   `json:"approve"`
}

func (ApplicationVotePayload) PayloadType() string { return "application_vote:v1" }

// ReportPayload flags a target for review.
type ReportPayload struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

func (ReportPayload) PayloadType() string { return "report:v1" }

// ReportEscalatePayload escalates a report into an oversight case.
type ReportEscalatePayload struct {
	ReportID string `json:"report_id"`
}

func (ReportEscalatePayload) PayloadType() string { return "report_escalate:v1" }

// OversightCasePayload opens a formal oversight case from an escalated
// report.
type OversightCasePayload struct {
	ReportID string `json:"report_id"`
	Summary  string `json:"summary"`
}

func (OversightCasePayload) PayloadType() string { return "oversight_case:v1" }

// JuryVotePayload casts a verdict in an oversight case.
type JuryVotePayload struct {
	CaseID  string `json:"case_id"`
	Verdict string `json:"verdict"`
}

func (JuryVotePayload) PayloadType() string { return "jury_vote:v1" }

// CommentPayload comments on a target content id.
type CommentPayload struct {
	Target string `json:"target"`
	Body   string `json:"body"`
}

func (CommentPayload) PayloadType() string { return "comment:v1" }

// LikePayload likes or unlikes a target content id.
type LikePayload struct {
	Target string `json:"target"`
	Remove bool   `json:"remove"`
}

func (LikePayload) PayloadType() string { return "like:v1" }

// StoryPayload is an ephemeral post pruned 24h after its wall-clock age.
type StoryPayload struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

func (StoryPayload) PayloadType() string { return "story:v1" }

// FollowPayload follows or unfollows a target author.
type FollowPayload struct {
	Target string `json:"target"`
	Follow bool   `json:"follow"`
}

func (FollowPayload) PayloadType() string { return "follow:v1" }

// CoursePayload publishes an educational course.
type CoursePayload struct {
	Title    string `json:"title"`
	Syllabus string `json:"syllabus"`
}

func (CoursePayload) PayloadType() string { return "course:v1" }

// ExamPayload publishes an exam for a course.
type ExamPayload struct {
	CourseID  string `json:"course_id"`
	Questions string `json:"questions"`
}

func (ExamPayload) PayloadType() string { return "exam:v1" }

// ExamSubmissionPayload submits answers to an exam.
type ExamSubmissionPayload struct {
	ExamID  string `json:"exam_id"`
	Answers string `json:"answers"`
}

func (ExamSubmissionPayload) PayloadType() string { return "exam_submission:v1" }

// CertificationKind enumerates the certifications role/category gates check
// for (§4.9 Role gates).
type CertificationKind string

const (
	CertCivicLiteracy   CertificationKind = "CivicLiteracy"
	CertGovernanceRoles CertificationKind = "GovernanceRoles"
)

// CertificationPayload attests that Subject holds a certification. No
// revocation model: the newest certification of a kind wins (§4.5).
type CertificationPayload struct {
	Kind    CertificationKind `json:"kind"`
	Subject string            `json:"subject"`
}

func (CertificationPayload) PayloadType() string { return "certification:v1" }

// FilePayload records metadata for a blob already stored via BlobPayload.
type FilePayload struct {
	Name    string `json:"name"`
	BlobCID string `json:"blob_cid"`
	Size    uint64 `json:"size"`
}

func (FilePayload) PayloadType() string { return "file:v1" }

// payloadFactories maps a type discriminator to a zero-value constructor,
// used by Event.UnmarshalJSON to pick the concrete struct before decoding
// the nested "data" object. name_binding:v1 is kept as an alias of
// name:v1 for command-surface naming parity (§3).
var payloadFactories = map[string]func() Payload{
	"profile:v1":          func() Payload { return &ProfilePayload{} },
	"post:v1":             func() Payload { return &PostPayload{} },
	"proof:v1":            func() Payload { return &ProofPayload{} },
	"message:v1":          func() Payload { return &MessagePayload{} },
	"group:v1":            func() Payload { return &GroupPayload{} },
	"token:v1":            func() Payload { return &TokenPayload{} },
	"web:v1":              func() Payload { return &WebPayload{} },
	"name:v1":             func() Payload { return &NamePayload{} },
	"name_binding:v1":     func() Payload { return &NamePayload{} },
	"blob:v1":             func() Payload { return &BlobPayload{} },
	"listing:v1":          func() Payload { return &ListingPayload{} },
	"contract:v1":         func() Payload { return &ContractPayload{} },
	"contract_call:v1":    func() Payload { return &ContractCallPayload{} },
	"proposal:v1":         func() Payload { return &ProposalPayload{} },
	"vote:v1":             func() Payload { return &VotePayload{} },
	"candidacy:v1":        func() Payload { return &CandidacyPayload{} },
	"candidacy_vote:v1":   func() Payload { return &CandidacyVotePayload{} },
	"recall:v1":           func() Payload { return &RecallPayload{} },
	"recall_vote:v1":      func() Payload { return &RecallVotePayload{} },
	"application:v1":      func() Payload { return &ApplicationPayload{} },
	"application_vote:v1": func() Payload { return &ApplicationVotePayload{} },
	"report:v1":           func() Payload { return &ReportPayload{} },
	"report_escalate:v1":  func() Payload { return &ReportEscalatePayload{} },
	"oversight_case:v1":   func() Payload { return &OversightCasePayload{} },
	"jury_vote:v1":        func() Payload { return &JuryVotePayload{} },
	"comment:v1":          func() Payload { return &CommentPayload{} },
	"like:v1":             func() Payload { return &LikePayload{} },
	"story:v1":            func() Payload { return &StoryPayload{} },
	"follow:v1":           func() Payload { return &FollowPayload{} },
	"course:v1":           func() Payload { return &CoursePayload{} },
	"exam:v1":             func() Payload { return &ExamPayload{} },
	"exam_submission:v1":  func() Payload { return &ExamSubmissionPayload{} },
	"certification:v1":    func() Payload { return &CertificationPayload{} },
	"file:v1":             func() Payload { return &FilePayload{} },
}
