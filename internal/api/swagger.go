package api

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed openapi.yaml
var openAPISpec string

// SpecHandler serves the OpenAPI YAML spec with any runtime placeholders
// replaced. The embedded file contains {oktaIssuer} so clients don't have to
// know the actual tenant or issuer URL.
func SpecHandler(oktaIssuer string) http.HandlerFunc {
	spec := strings.ReplaceAll(openAPISpec, "{oktaIssuer}", oktaIssuer)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(spec))
	}
}

// SwaggerHandler serves a Swagger UI page pointing at the OpenAPI spec. The
// page uses the CDN-hosted assets and is configured for PKCE against the
// same Okta tenant used by the application, requesting scopes.
func SwaggerHandler(oktaDomain, clientID string, scopes []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		oauth2Redirect := scheme + "://" + r.Host + "/docs/oauth2-redirect.html"

		html := strings.NewReplacer(
			"${SPEC_URL}", "/openapi.yaml",
			"${OAUTH2_REDIRECT}", oauth2Redirect,
			// OKTA_DOMAIN is really the issuer base URL; pass as-is
			"${OKTA_DOMAIN}", oktaDomain,
			"${CLIENT_ID}", clientID,
			"${SCOPES}", strings.Join(scopes, " "),
		).Replace(swaggerHTML)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}
}

// OAuth2RedirectHandler serves the OAuth2 redirect page used by Swagger UI
func OAuth2RedirectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(oauthRedirectHTML))
	}
}

const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>ideaflow API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
  <script>
  window.onload = function() {
    const ui = SwaggerUIBundle({
      url: "${SPEC_URL}",
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout",
      oauth2RedirectUrl: "${OAUTH2_REDIRECT}",
    });
    window.ui = ui;

    ui.initOAuth({
      clientId: "${CLIENT_ID}",
      scopes: "${SCOPES}",
      usePkceWithAuthorizationCodeGrant: true,
    });

    // the client id is fixed; hide it in the authorize dialog
    const style = document.createElement('style');
    style.textContent =
      " .dialog-ux input[name=\"client_id\"],\n" +
      " .dialog-ux label[for=\"client_id\"] {\n" +
      "     display: none !important;\n" +
      " }\n";
    document.head.appendChild(style);

    const observer = new MutationObserver(() => {
      const cidInput = document.querySelector('.dialog-ux input[name="client_id"]');
      if (cidInput) {
        cidInput.value = "${CLIENT_ID}";
      }
      const secretInput = document.querySelector('.dialog-ux input[name="client_secret"]');
      if (secretInput) {
        secretInput.placeholder = "optional, PKCE is used";
        secretInput.disabled = true;
      }
    });
    observer.observe(document.body, { childList: true, subtree: true });
  }
  </script>
</body>
</html>`

const oauthRedirectHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"/><title>OAuth2 Redirect</title></head>
<body>
<script>
if (window.opener && window.opener.swaggerUIRedirectCallback) {
  window.opener.swaggerUIRedirectCallback(window.location.href);
}
</script>
</body>
</html>`
