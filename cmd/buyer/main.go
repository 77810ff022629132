// Command buyer runs a buyer process: login, join or quit auctions, and
// serve the seller-initiated announce_price/finish_auction RPCs. Per spec
// §1's "[ADDED] Process entry points", `shell` is the primary long-lived
// mode; the other subcommands are one-shot scripting conveniences.
package main

import (
	"bufio"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/buyer"
	"github.com/tao-l/CS262-project/internal/config"
	"github.com/tao-l/CS262-project/internal/logging"
	"github.com/tao-l/CS262-project/internal/platform"
	"github.com/tao-l/CS262-project/internal/transport"
)

var (
	configPath string
	username   string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{Use: "buyer", Short: "Operate a buyer process"}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&username, "username", "", "this buyer's username")
	root.MarkPersistentFlagRequired("username")
	root.AddCommand(loginCmd(), joinCmd(), quitCmd(), shellCmd())
	return root
}

// session bundles one buyer process's components: the store, the Platform
// client, the seller stub cache, the UI observer, and the net/rpc listener
// sellers dial for BuyerService.AnnouncePrice/FinishAuction.
type session struct {
	buyer    *buyer.Buyer
	client   *platform.Client
	logger   *zap.Logger
	listener net.Listener
	stop     chan struct{}
}

func newSession() (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(fmt.Sprintf("buyer-%s", username))
	if err != nil {
		return nil, err
	}

	client := platform.NewClient(cfg, logger)
	store := buyer.NewStore(username)
	stubs := transport.NewStubCache(cfg.RPCTimeout())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("buyer: rpc listener: %w", err)
	}

	ui, err := buyer.NewUIServer("127.0.0.1:0", store, logger)
	if err != nil {
		return nil, fmt.Errorf("buyer: ui server: %w", err)
	}
	ui.Start()

	b := buyer.New(store, client, stubs, ui, logger, listener.Addr().String())

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("BuyerService", buyer.NewService(b)); err != nil {
		return nil, fmt.Errorf("buyer: register rpc: %w", err)
	}
	stop := make(chan struct{})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go rpcServer.ServeConn(conn)
		}
	}()
	go b.RunReconciler(stop)

	logger.Info("buyer process started", zap.String("rpc_addr", listener.Addr().String()), zap.String("ui_addr", ui.Addr()))

	return &session{buyer: b, client: client, logger: logger, listener: listener, stop: stop}, nil
}

func (s *session) close() {
	close(s.stop)
	s.listener.Close()
	s.client.Close()
	s.logger.Sync()
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Register this buyer's username with the Platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.buyer.Login(); err != nil {
				return err
			}
			fmt.Println("logged in")
			return nil
		},
	}
}

func joinCmd() *cobra.Command {
	var auctionID int
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join an auction before it starts",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.buyer.Login(); err != nil {
				return err
			}
			if err := s.buyer.JoinAuction(auctionID); err != nil {
				return err
			}
			fmt.Printf("joined auction %d, serving announce/finish until interrupted\n", auctionID)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			return nil
		},
	}
	cmd.Flags().IntVar(&auctionID, "auction-id", 0, "auction id to join")
	cmd.MarkFlagRequired("auction-id")
	return cmd
}

func quitCmd() *cobra.Command {
	var auctionID int
	cmd := &cobra.Command{
		Use:   "quit",
		Short: "Quit an auction before it starts",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.buyer.Login(); err != nil {
				return err
			}
			return s.buyer.QuitAuction(auctionID)
		},
	}
	cmd.Flags().IntVar(&auctionID, "auction-id", 0, "auction id to quit")
	cmd.MarkFlagRequired("auction-id")
	return cmd
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive console: join, withdraw, and list auctions in one long-lived process",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.buyer.Login(); err != nil {
				return err
			}
			runShell(s)
			return nil
		},
	}
}

func runShell(s *session) {
	fmt.Println("buyer shell. commands: fetch | join <auction_id> | quit <auction_id> | withdraw <auction_id> | ls | exit")
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "exit":
			return
		case "fetch":
			if err := s.buyer.FetchAuctions(); err != nil {
				fmt.Println("error:", err)
			}
		case "join":
			if len(fields) != 2 {
				fmt.Println("usage: join <auction_id>")
				continue
			}
			id, _ := strconv.Atoi(fields[1])
			if err := s.buyer.JoinAuction(id); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("joined auction %d\n", id)
		case "quit":
			if len(fields) != 2 {
				fmt.Println("usage: quit <auction_id>")
				continue
			}
			id, _ := strconv.Atoi(fields[1])
			if err := s.buyer.QuitAuction(id); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("quit auction %d\n", id)
		case "withdraw":
			if len(fields) != 2 {
				fmt.Println("usage: withdraw <auction_id>")
				continue
			}
			id, _ := strconv.Atoi(fields[1])
			ok, msg, err := s.buyer.Withdraw(id)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("withdraw: success=%v message=%s\n", ok, msg)
		case "ls":
			for _, a := range s.buyer.Store().Snapshot() {
				fmt.Printf("%d\t%s\tstarted=%v\tfinished=%v\tprice=%d\n", a.ID, a.Name, a.Started, a.Finished, a.CurrentPrice)
			}
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
