package contract

// PortfolioMandalaABI is the subset of the PortfolioMandala ERC721 interface the backend calls.
const PortfolioMandalaABI = `[
  {"type":"function","name":"mintMandala","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"hasTraderMinted","stateMutability":"view","inputs":[{"name":"trader","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getTraderTokenId","stateMutability":"view","inputs":[{"name":"trader","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTokenTrader","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"setBaseURI","stateMutability":"nonpayable","inputs":[{"name":"baseURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"setContractURI","stateMutability":"nonpayable","inputs":[{"name":"contractURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"pauseMinting","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"unpauseMinting","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"event","name":"MandalaCreated","anonymous":false,"inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"trader","type":"address","indexed":true}]}
]`
