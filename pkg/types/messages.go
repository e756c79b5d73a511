package types

// Client -> Server
// check:                  {}                          -> registrationStatus
// team:login:             "<team _id>"                -> login:success | login:error
// team:logout:            {}
// domainStat:             {}                          -> domainStat
// client:getDomains:      ""                          -> domaindata
// domainSelected:         { teamId, domain }          -> domainSelected
// getGameStatus:          {}                          -> gameStatusUpdate, puzzleStatusUpdate, stopTheBarStatusUpdate
// judge:getReviewStatus:  {}                          -> reviewStatusUpdate
const (
	TopicCheck           = "check"
	TopicTeamLogin       = "team:login"
	TopicTeamLogout      = "team:logout"
	TopicDomainStat      = "domainStat"
	TopicGetDomains      = "client:getDomains"
	TopicDomainSelected  = "domainSelected"
	TopicGetGameStatus   = "getGameStatus"
	TopicGetReviewStatus = "judge:getReviewStatus"
)

// Server -> Client
// registrationStatus:     { isClosed, openTime, count, limit }
// login:success:          {}
// login:error:            { message }
// team:                   full team record (replaces the cached one when _id matches)
// domaindata:             [ { id, name, description, set, slots } ]
// domainStat:             null | true | "<ISO time>"
// domainSelected:         { success, domain: { name } } | { error }
// gameStatusUpdate:       null | "<ISO time>"
// puzzleStatusUpdate:     null | "<ISO time>"
// stopTheBarStatusUpdate: null | "<ISO time>"
// reviewStatusUpdate:     { isFirstReviewOpen, isSecondReviewOpen }
// admin:sendReminder:     { message, time }
// client:receivePPT:      opaque
// editDetailsStatusUpdate:{ isEditDetailsOpen }
// forceLogout:            { message }
const (
	TopicRegistrationStatus = "registrationStatus"
	TopicLoginSuccess       = "login:success"
	TopicLoginError         = "login:error"
	TopicTeam               = "team"
	TopicDomainData         = "domaindata"
	TopicGameStatus         = "gameStatusUpdate"
	TopicPuzzleStatus       = "puzzleStatusUpdate"
	TopicStopTheBarStatus   = "stopTheBarStatusUpdate"
	TopicReviewStatus       = "reviewStatusUpdate"
	TopicReminder           = "admin:sendReminder"
	TopicPPT                = "client:receivePPT"
	TopicEditDetailsStatus  = "editDetailsStatusUpdate"
	TopicForceLogout        = "forceLogout"
)

// TopicConnect is dispatched locally every time the channel (re)connects.
// It never travels on the wire.
const TopicConnect = "$connect"

// Local UI socket (teamdash /ws and POST /actions)
//
// UI -> teamdash: { type, ref?, token?, set?, id?, game?, score?, text? }
//   Login{token} Logout Refresh OpenDomainSet{set} ChooseDomain{id}
//   RequestConfirm ConfirmDomain CancelConfirm CloseDomain
//   OpenGame{game} CloseGame{game} SubmitScore{game, score}
//   OpenIssue CloseIssue SubmitIssue{text} DismissReminder DismissBanner
//
// teamdash -> UI:
//   StateSnapshot: { version, state }   sent on join and after every change
//   Ack:           { ref, error? }      one per command, after it settles
//   Error:         { ref?, error }      malformed or unknown command
const (
	LocalSnapshot = "StateSnapshot"
	LocalAck      = "Ack"
	LocalError    = "Error"
)
