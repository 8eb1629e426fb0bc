package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"github.com/wfunc/soundbeats/api"
	"github.com/wfunc/soundbeats/auth"
	sbrpc "github.com/wfunc/soundbeats/rpc"
)

func main() {
	cliApp := &cli.App{
		Name:  "soundbeats",
		Usage: "command-line client for the soundbeats server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "ws://localhost:8123/api/websocket", Usage: "websocket endpoint", EnvVars: []string{"SOUNDBEATS_SERVER"}},
			&cli.StringFlag{Name: "rpc", Usage: "use the net/rpc endpoint at this address instead of the websocket", EnvVars: []string{"SOUNDBEATS_RPC"}},
			&cli.StringFlag{Name: "token", Usage: "access token", EnvVars: []string{"SOUNDBEATS_TOKEN"}},
			&cli.StringFlag{Name: "instance", Usage: "instance id, defaults to the first configured instance"},
		},
		Commands: []*cli.Command{
			tokenCommand(),
			simpleCommand("state", "show the game state", api.CmdGetGameState),
			simpleCommand("highscores", "show the highscores", api.CmdGetHighscores),
			simpleCommand("end-round", "end the running round and score it", api.CmdEndRound),
			simpleCommand("next-round", "prepare the next round", api.CmdNextRound),
			simpleCommand("reset", "end the game", api.CmdResetGame),
			simpleCommand("sources", "list media player sources", api.CmdGetMediaSources),
			{
				Name:  "new-game",
				Usage: "start a new game",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "teams", Value: 2},
					&cli.StringSliceFlag{Name: "name", Usage: "team name, repeat for each team"},
					&cli.StringFlag{Name: "playlist"},
					&cli.IntFlag{Name: "timer", Usage: "round length in seconds"},
				},
				Action: func(c *cli.Context) error {
					args := map[string]interface{}{"team_count": c.Int("teams")}
					if names := c.StringSlice("name"); len(names) > 0 {
						args["team_names"] = names
					}
					if p := c.String("playlist"); p != "" {
						args["playlist_id"] = p
					}
					if t := c.Int("timer"); t > 0 {
						args["timer_seconds"] = t
					}
					return run(c, api.CmdNewGame, args)
				},
			},
			{
				Name:  "start-round",
				Usage: "start a round for a song",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "id", Required: true},
					&cli.IntFlag{Name: "year", Required: true},
					&cli.StringFlag{Name: "url", Usage: "track reference played on the media player"},
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "artist"},
				},
				Action: func(c *cli.Context) error {
					return run(c, api.CmdStartRound, map[string]interface{}{
						"song": map[string]interface{}{
							"id":     c.Int("id"),
							"year":   c.Int("year"),
							"url":    c.String("url"),
							"song":   c.String("title"),
							"artist": c.String("artist"),
						},
					})
				},
			},
			{
				Name:  "guess",
				Usage: "submit a year guess for a team",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "team", Required: true},
					&cli.IntFlag{Name: "year", Required: true},
					&cli.BoolFlag{Name: "bet"},
				},
				Action: func(c *cli.Context) error {
					return run(c, api.CmdSubmitGuess, map[string]interface{}{
						"team_id": c.String("team"),
						"year":    c.Int("year"),
						"has_bet": c.Bool("bet"),
					})
				},
			},
			{
				Name:  "rename",
				Usage: "rename a team",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "team", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: func(c *cli.Context) error {
					return run(c, api.CmdUpdateTeamName, map[string]interface{}{"team_id": c.String("team"), "name": c.String("name")})
				},
			},
			{
				Name:  "assign",
				Usage: "assign a user to a team",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "team", Required: true},
					&cli.StringFlag{Name: "user", Required: true},
				},
				Action: func(c *cli.Context) error {
					return run(c, api.CmdAssignUserToTeam, map[string]interface{}{"team_id": c.String("team"), "user_id": c.String("user")})
				},
			},
			{
				Name:      "media",
				Usage:     "control the media player",
				ArgsUsage: "play|pause|stop|volume|select_source",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "volume", Value: 0.5},
					&cli.StringFlag{Name: "source"},
				},
				Action: func(c *cli.Context) error {
					action := c.Args().First()
					if action == "" {
						return errors.New("media action is required")
					}
					args := map[string]interface{}{"action": action}
					switch action {
					case api.ActionVolume:
						args["volume_level"] = c.Float64("volume")
					case api.ActionSelectSource:
						args["source"] = c.String("source")
					}
					return run(c, api.CmdMediaControl, args)
				},
			},
			{
				Name:   "watch",
				Usage:  "print events until interrupted",
				Action: watch,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func simpleCommand(name, usage, command string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			return run(c, command, map[string]interface{}{})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "sign an access token with the server secret",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", Required: true, EnvVars: []string{"SOUNDBEATS_SERVER_JWT_SECRET"}},
			&cli.StringFlag{Name: "user", Required: true},
			&cli.StringFlag{Name: "display-name"},
			&cli.BoolFlag{Name: "admin"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			token, err := auth.NewService(c.String("secret"), c.Duration("ttl")).Issue(auth.Caller{
				UserID:  c.String("user"),
				Name:    c.String("display-name"),
				IsAdmin: c.Bool("admin"),
			}, 0)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

// run sends one command and prints its result.
func run(c *cli.Context, command string, args map[string]interface{}) error {
	if id := c.String("instance"); id != "" {
		args["instance_id"] = id
	}
	name := api.Prefix + command

	var result json.RawMessage
	if addr := c.String("rpc"); addr != "" {
		client, err := sbrpc.Dial(addr, c.String("token"))
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Execute(name, args, &result); err != nil {
			return err
		}
	} else {
		conn, err := dial(c)
		if err != nil {
			return err
		}
		defer conn.Close()
		if result, err = call(conn, 1, name, args); err != nil {
			return err
		}
	}
	return printJSON(result)
}

func dial(c *cli.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.String("server"))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", c.String("token"))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.String("server"), err)
	}
	return conn, nil
}

type response struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *api.Error      `json:"error"`
}

// call sends a command and waits for the result with the same id,
// skipping any events pushed in between.
func call(conn *websocket.Conn, id int64, name string, args map[string]interface{}) (json.RawMessage, error) {
	msg := map[string]interface{}{}
	for k, v := range args {
		msg[k] = v
	}
	msg["id"] = id
	msg["type"] = name
	if err := conn.WriteJSON(msg); err != nil {
		return nil, err
	}

	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, err
		}
		if resp.Type != "result" || resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func watch(c *cli.Context) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	conn, err := dial(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := call(conn, 1, api.Prefix+api.CmdSubscribe, map[string]interface{}{"instance_id": c.String("instance")}); err != nil {
		return err
	}
	log.Println("Watching events, press Ctrl+C to stop.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- %s", strings.TrimSpace(string(data)))
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		log.Println("Interrupt received, closing connection.")
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Write close error:", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	return nil
}

func printJSON(raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
