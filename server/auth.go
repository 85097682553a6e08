package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/pixstore/pix"
)

// authConfig is the [auth] section.  Without a secret key no authorization
// is required.
type authConfig struct {
	AuthFile  string `toml:"auth_file"`
	SecretKey string `toml:"secret_key"`
}

// authorizer checks JWTs against a map of user to privilege ("read",
// "write" or "readwrite").  The user "*" matches any user.
type authorizer struct {
	secret []byte
	users  map[string]string
}

func newAuthorizer(c authConfig) (*authorizer, error) {
	if c.SecretKey == "" {
		pix.Infof("No JWT secret key set.  Proceeding without authorization.\n")
		return nil, nil
	}
	a := &authorizer{secret: []byte(c.SecretKey)}
	if c.AuthFile == "" {
		pix.Warningf("JWT secret key given without auth file; all requests will be refused.\n")
		return a, nil
	}
	data, err := os.ReadFile(c.AuthFile)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &a.users); err != nil {
		return nil, fmt.Errorf("bad auth file %s: %w", c.AuthFile, err)
	}
	pix.Infof("Loaded %d authorized users from %s\n", len(a.users), c.AuthFile)
	return a, nil
}

// generateJWT returns a JWT for the user signed with the server secret.
func (a *authorizer) generateJWT(user string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user": user})
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %w", err)
	}
	return tokenString, nil
}

// middleware validates a bearer JWT and sets c.Env["user"] to the
// authenticated user.
func (a *authorizer) middleware(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		reqToken := r.Header.Get("Authorization")
		if len(reqToken) == 0 {
			writeErrorStatus(w, r, http.StatusUnauthorized, "JWT required via Authorization in request header")
			return
		}
		splitToken := strings.Split(reqToken, "Bearer")
		if len(splitToken) != 2 || strings.TrimSpace(splitToken[1]) == "" {
			writeErrorStatus(w, r, http.StatusUnauthorized, "bearer not in proper format")
			return
		}
		token, err := jwt.Parse(strings.TrimSpace(splitToken[1]), func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil {
			writeErrorStatus(w, r, http.StatusUnauthorized, fmt.Sprintf("error parsing JWT: %v", err))
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			writeErrorStatus(w, r, http.StatusUnauthorized, "failed authorization")
			return
		}
		user, ok := claims["user"].(string)
		if !ok {
			writeErrorStatus(w, r, http.StatusUnauthorized, fmt.Sprintf("user %v is not a simple string", claims["user"]))
			return
		}
		if !a.isAuthorized(user, r.Method) {
			writeErrorStatus(w, r, http.StatusForbidden, fmt.Sprintf("user %q is not authorized", user))
			return
		}
		if c.Env == nil {
			c.Env = make(map[interface{}]interface{})
		}
		c.Env["user"] = user
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// isAuthorized returns true if the user's privilege allows the method.
func (a *authorizer) isAuthorized(user string, httpMethod string) bool {
	if len(a.users) == 0 {
		return false
	}
	readReq := httpMethod == http.MethodGet || httpMethod == http.MethodHead
	priv, found := a.users[user]
	if !found {
		priv, found = a.users["*"]
		if !found {
			return false
		}
	}
	switch priv {
	case "readwrite":
		return true
	case "read":
		return readReq
	case "write":
		return !readReq
	default:
		pix.Errorf("Authorized user %q has unparsable privilege %q\n", user, priv)
		return false
	}
}
