package sso

import (
	"net/http"
	"net/url"

	"github.com/dgellow/cdsso/internal/authtoken"
	"github.com/dgellow/cdsso/internal/log"
	"github.com/dgellow/cdsso/internal/metrics"
	"github.com/dgellow/cdsso/internal/origin"
	"github.com/dgellow/cdsso/internal/protocol"
	"github.com/dgellow/cdsso/internal/script"
	"github.com/dgellow/cdsso/internal/urlutil"
)

// checkLoginStatus runs on the main site inside the hidden iframe a mapped
// domain inserted. A logged in user gets a token for the asking domain and a
// bootstrap of its authorize endpoint.
func (e *Engine) checkLoginStatus(w http.ResponseWriter, r *http.Request) outcome {
	ctx := r.Context()
	if !e.isMain(r.Host) {
		e.writeNothing(w)
		return metrics.OutcomeNoop
	}

	uid, ok := e.sessions.CurrentUserID(r)
	if !ok {
		e.writeNothing(w)
		return metrics.OutcomeNoop
	}

	domain := origin.NormalizeHost(r.FormValue(protocol.ParamDomain))
	trusted, err := e.trustedTarget(ctx, domain)
	if err != nil {
		log.LogErrorCtx(ctx, "sso", "Failed to look up requesting domain", map[string]any{
			"domain": domain,
			"error":  err.Error(),
		})
		e.writeNothing(w)
		return metrics.OutcomeError
	}
	if !trusted {
		log.LogWarnCtx(ctx, "sso", "Status check from unknown domain", map[string]any{
			"domain": domain,
		})
		e.writeNothing(w)
		return metrics.OutcomeRejected
	}

	tok, err := e.tokens.Issue(uid, domain, e.cfg.TokenTTL)
	if err != nil {
		log.LogErrorCtx(ctx, "sso", "Failed to issue auth token", map[string]any{
			"error": err.Error(),
		})
		e.writeNothing(w)
		return metrics.OutcomeError
	}
	e.metrics.TokenIssued(protocol.AuthorizeUser.String())

	target := e.resolver.ResolveEndpointURL(ctx, protocol.AuthorizeUser, domain, url.Values{
		protocol.ParamAuth: {tok.String()},
	})
	log.LogDebugCtx(ctx, "sso", "Issued token for mapped domain", map[string]any{
		"domain": domain,
		"user":   uid.String(),
	})
	e.writeScript(w, script.StatusResponse(target))
	return metrics.OutcomeSuccess
}

// authorizeUser runs on the mapped domain and logs the token's subject in
// there. The audience is the bare host, as the status check issued it.
func (e *Engine) authorizeUser(w http.ResponseWriter, r *http.Request) outcome {
	tok, result := e.redeem(w, r, origin.NormalizeHost(r.Host))
	if result != "" {
		return result
	}

	if err := e.sessions.SetSession(w, r, tok.Subject); err != nil {
		log.LogErrorCtx(r.Context(), "sso", "Failed to set session", map[string]any{
			"error": err.Error(),
		})
		e.writeNothing(w)
		return metrics.OutcomeError
	}
	e.writeScript(w, script.ReloadTop())
	return metrics.OutcomeSuccess
}

// propagateUser runs on the main site after a login on a mapped domain.
func (e *Engine) propagateUser(w http.ResponseWriter, r *http.Request) outcome {
	if !e.isMain(r.Host) {
		e.writeNothing(w)
		return metrics.OutcomeNoop
	}

	tok, result := e.redeem(w, r, e.resolver.CanonicalHost())
	if result != "" {
		return result
	}

	if err := e.sessions.SetSession(w, r, tok.Subject); err != nil {
		log.LogErrorCtx(r.Context(), "sso", "Failed to set session", map[string]any{
			"error": err.Error(),
		})
		e.writeNothing(w)
		return metrics.OutcomeError
	}
	e.writeScript(w, script.TriggerRedirect())
	return metrics.OutcomeSuccess
}

// redeem validates the auth parameter for audience and consumes it. On
// failure it writes the negative response and returns a non-empty outcome.
func (e *Engine) redeem(w http.ResponseWriter, r *http.Request, audience string) (authtoken.AuthToken, outcome) {
	ctx := r.Context()
	raw := r.FormValue(protocol.ParamAuth)
	if raw == "" {
		e.writeNothing(w)
		return authtoken.AuthToken{}, metrics.OutcomeNoop
	}

	tok, ok := e.tokens.ValidateToken(raw, audience)
	if !ok {
		log.LogDebugCtx(ctx, "sso", "Rejected auth token", map[string]any{
			"host": r.Host,
		})
		e.writeNothing(w)
		return authtoken.AuthToken{}, metrics.OutcomeRejected
	}

	fresh, err := e.replay.Consume(ctx, tok.ID(), tok.ExpiresAt)
	if err != nil {
		log.LogErrorCtx(ctx, "sso", "Failed to consume auth token", map[string]any{
			"error": err.Error(),
		})
		e.writeNothing(w)
		return authtoken.AuthToken{}, metrics.OutcomeError
	}
	if !fresh {
		log.LogWarnCtx(ctx, "sso", "Auth token replayed", map[string]any{
			"host": r.Host,
			"user": tok.Subject.String(),
		})
		e.writeNothing(w)
		return authtoken.AuthToken{}, metrics.OutcomeReplayed
	}
	return tok, ""
}

// logoutUser ends the session on the origin serving the ajax URL and sends
// the browser back to the page that asked for it.
func (e *Engine) logoutUser(w http.ResponseWriter, r *http.Request) outcome {
	ctx := r.Context()
	if !e.sessions.IsAuthenticated(r) {
		e.writeNothing(w)
		return metrics.OutcomeNoop
	}

	referer := r.Referer()
	if referer == "" {
		e.writeNothing(w)
		return metrics.OutcomeNoop
	}

	// The session ends whatever the referrer. Only the trip back needs a
	// mapped or canonical host.
	e.sessions.ClearSession(w, r)

	ref, err := url.Parse(referer)
	if err != nil {
		e.writeNothing(w)
		return metrics.OutcomeRejected
	}

	trusted, err := e.trustedTarget(ctx, ref.Host)
	if err != nil {
		log.LogErrorCtx(ctx, "sso", "Failed to look up referring domain", map[string]any{
			"referer": referer,
			"error":   err.Error(),
		})
		e.writeNothing(w)
		return metrics.OutcomeError
	}
	if !trusted {
		log.LogWarnCtx(ctx, "sso", "Logout from unknown referrer", map[string]any{
			"referer": referer,
		})
		e.writeNothing(w)
		return metrics.OutcomeRejected
	}

	e.writeScript(w, script.Navigate(urlutil.RemoveQueryArg(referer, protocol.MarkerKey)))
	return metrics.OutcomeSuccess
}
