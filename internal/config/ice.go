package config

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// iceServerJSON accepts "urls" as a single string or a list, like browsers do.
type iceServerJSON struct {
	URLs       json.RawMessage `json:"urls"`
	Username   string          `json:"username"`
	Credential string          `json:"credential"`
}

func parseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("ice_servers_json: %w", err)
	}
	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		var urls []string
		var single string
		if err := json.Unmarshal(e.URLs, &single); err == nil {
			urls = []string{single}
		} else if err := json.Unmarshal(e.URLs, &urls); err != nil {
			return nil, fmt.Errorf("ice_servers_json[%d]: urls must be a string or a list of strings", i)
		}
		if len(urls) == 0 || urls[0] == "" {
			return nil, fmt.Errorf("ice_servers_json[%d]: no urls", i)
		}
		server := webrtc.ICEServer{URLs: urls, Username: e.Username}
		if e.Credential != "" {
			server.Credential = e.Credential
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// ICEServers resolves the STUN/TURN list. ice_servers_json wins over the
// convenience keys; nil means the built-in defaults apply.
func (c *Config) ICEServers() ([]webrtc.ICEServer, error) {
	if c.ICEServersJSON != "" {
		return parseICEServersJSON(c.ICEServersJSON)
	}
	var servers []webrtc.ICEServer
	if len(c.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: c.STUNURLs})
	}
	if len(c.TURNURLs) > 0 {
		if c.TURNUsername == "" || c.TURNCredential == "" {
			return nil, fmt.Errorf("turn_urls needs turn_username and turn_credential")
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       c.TURNURLs,
			Username:   c.TURNUsername,
			Credential: c.TURNCredential,
		})
	}
	return servers, nil
}
