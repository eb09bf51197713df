package models

const (
	StatusMatchLive    = "Match Live"
	StatusMatchNotLive = "Match Not Live"
)

type Player struct {
	Name string `json:"name" firestore:"name" bson:"name"`
	Runs int    `json:"runs" firestore:"runs" bson:"runs"`
}

// Match is the singleton live-score document scores/match.
type Match struct {
	Live           bool     `json:"live" firestore:"live" bson:"live"`
	Team1          string   `json:"team1" firestore:"team1" bson:"team1"`
	Team2          string   `json:"team2" firestore:"team2" bson:"team2"`
	BattingTeam    string   `json:"battingTeam" firestore:"battingTeam" bson:"battingTeam"`
	BestPlayer     string   `json:"bestPlayer" firestore:"bestPlayer" bson:"bestPlayer"`
	RunsTeam1      int      `json:"runsTeam1" firestore:"runsTeam1" bson:"runsTeam1"`
	RunsTeam2      int      `json:"runsTeam2" firestore:"runsTeam2" bson:"runsTeam2"`
	Overs          float64  `json:"overs" firestore:"overs" bson:"overs"`
	RemainingOvers float64  `json:"remainingOvers" firestore:"remainingOvers" bson:"remainingOvers"`
	CurrentBatter  string   `json:"currentBatter" firestore:"currentBatter" bson:"currentBatter"`
	Team1Players   []Player `json:"team1Players" firestore:"team1Players" bson:"team1Players"`
	Team2Players   []Player `json:"team2Players" firestore:"team2Players" bson:"team2Players"`
}

// ScoreBoard holds the fields shown only while a match is live.
type ScoreBoard struct {
	Team1          string   `json:"team1"`
	Team2          string   `json:"team2"`
	BattingTeam    string   `json:"battingTeam"`
	BestPlayer     string   `json:"bestPlayer"`
	RunsTeam1      int      `json:"runsTeam1"`
	RunsTeam2      int      `json:"runsTeam2"`
	Overs          float64  `json:"overs"`
	RemainingOvers float64  `json:"remainingOvers"`
	CurrentBatter  string   `json:"currentBatter"`
	Team1Players   []Player `json:"team1Players"`
	Team2Players   []Player `json:"team2Players"`
}

// ScoreView is one rendered frame. When the match is not live only Status is
// set and the board is omitted, so clients keep whatever they last showed.
type ScoreView struct {
	Status string `json:"status"`
	Live   bool   `json:"live"`
	*ScoreBoard
}
